package gateway

import (
	"context"
	"fmt"
	"time"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/option"

	"mcserver-backend/config"
)

// VMStatus is the coarse lifecycle state of the compute instance.
type VMStatus string

const (
	VMRunning       VMStatus = "RUNNING"
	VMStopped       VMStatus = "STOPPED"
	VMTransitioning VMStatus = "TRANSITIONING"
	VMUnknown       VMStatus = "UNKNOWN"
)

// ParseVMStatus maps a Compute Engine instance status onto VMStatus.
func ParseVMStatus(s string) VMStatus {
	switch s {
	case "RUNNING":
		return VMRunning
	case "TERMINATED", "STOPPED", "SUSPENDED":
		return VMStopped
	case "PROVISIONING", "STAGING", "STOPPING", "SUSPENDING", "REPAIRING":
		return VMTransitioning
	default:
		return VMUnknown
	}
}

// VMController controls the instance hosting the game server. Start and Stop
// block until the cloud operation finishes.
type VMController interface {
	Status(ctx context.Context) (VMStatus, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

const (
	vmStatusTimeout = 15 * time.Second
	vmOpTimeout     = 5 * time.Minute
)

// GCEController is a VMController backed by the Compute Engine API.
type GCEController struct {
	client   *compute.InstancesClient
	project  string
	zone     string
	instance string
}

// NewGCEController builds a client from the base64 service-account key in cfg.
func NewGCEController(ctx context.Context, cfg config.GCPConfig) (*GCEController, error) {
	creds, err := cfg.CredentialsJSON()
	if err != nil {
		return nil, err
	}
	client, err := compute.NewInstancesRESTClient(ctx, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("create compute client: %w", err)
	}
	return &GCEController{
		client:   client,
		project:  cfg.ProjectID,
		zone:     cfg.Zone,
		instance: cfg.InstanceName,
	}, nil
}

func (c *GCEController) Status(ctx context.Context) (VMStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, vmStatusTimeout)
	defer cancel()
	inst, err := c.client.Get(ctx, &computepb.GetInstanceRequest{
		Project:  c.project,
		Zone:     c.zone,
		Instance: c.instance,
	})
	if err != nil {
		return VMUnknown, wrap("vm status", err)
	}
	return ParseVMStatus(inst.GetStatus()), nil
}

func (c *GCEController) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, vmOpTimeout)
	defer cancel()
	op, err := c.client.Start(ctx, &computepb.StartInstanceRequest{
		Project:  c.project,
		Zone:     c.zone,
		Instance: c.instance,
	})
	if err != nil {
		return wrap("vm start", err)
	}
	return wrap("vm start", op.Wait(ctx))
}

func (c *GCEController) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, vmOpTimeout)
	defer cancel()
	op, err := c.client.Stop(ctx, &computepb.StopInstanceRequest{
		Project:  c.project,
		Zone:     c.zone,
		Instance: c.instance,
	})
	if err != nil {
		return wrap("vm stop", err)
	}
	return wrap("vm stop", op.Wait(ctx))
}

// Close releases the underlying connection.
func (c *GCEController) Close() error {
	return c.client.Close()
}
