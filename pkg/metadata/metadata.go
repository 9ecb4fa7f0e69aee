// Package metadata resolves the node's identity from the EC2 instance
// metadata service.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"github.com/cuemby/nomad-bootstrap/pkg/log"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

const (
	pathPrivateIP        = "local-ipv4"
	pathInstanceID       = "instance-id"
	pathAvailabilityZone = "placement/availability-zone"
	pathIdentityDocument = "instance-identity/document"
)

// Resolver resolves the identity of the current instance
type Resolver interface {
	ResolveIdentity(ctx context.Context) (types.NodeIdentity, error)
}

// API is the subset of the IMDS client used here
type API interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
	GetDynamicData(ctx context.Context, params *imds.GetDynamicDataInput, optFns ...func(*imds.Options)) (*imds.GetDynamicDataOutput, error)
}

// Client reads node identity from instance metadata. Lookups are not
// retried here; a failure is reported to the caller as-is.
type Client struct {
	api API
}

// New creates a client against the default or the given endpoint
func New(endpoint string) *Client {
	opts := imds.Options{
		Retryer: aws.NopRetryer{},
	}
	if endpoint != "" {
		opts.Endpoint = endpoint
	}
	return &Client{api: imds.New(opts)}
}

// NewWithAPI wraps an existing IMDS API implementation
func NewWithAPI(api API) *Client {
	return &Client{api: api}
}

// ResolveIdentity performs the four identity lookups
func (c *Client) ResolveIdentity(ctx context.Context) (types.NodeIdentity, error) {
	logger := log.WithComponent("metadata")

	ip, err := c.metadata(ctx, pathPrivateIP)
	if err != nil {
		return types.NodeIdentity{}, err
	}
	instanceID, err := c.metadata(ctx, pathInstanceID)
	if err != nil {
		return types.NodeIdentity{}, err
	}
	az, err := c.metadata(ctx, pathAvailabilityZone)
	if err != nil {
		return types.NodeIdentity{}, err
	}
	region, err := c.region(ctx)
	if err != nil {
		return types.NodeIdentity{}, err
	}

	id := types.NodeIdentity{
		InstanceID:       instanceID,
		PrivateIP:        ip,
		AvailabilityZone: az,
		Region:           region,
	}
	if err := id.Validate(); err != nil {
		return types.NodeIdentity{}, types.NewError(types.KindMetadataUnavailable, "resolve identity", err)
	}

	logger.Info().
		Str("instance_id", id.InstanceID).
		Str("private_ip", id.PrivateIP).
		Str("availability_zone", id.AvailabilityZone).
		Str("region", id.Region).
		Msg("Resolved node identity")
	return id, nil
}

func (c *Client) metadata(ctx context.Context, path string) (string, error) {
	out, err := c.api.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		return "", types.NewError(types.KindMetadataUnavailable, "read "+path, err)
	}
	defer out.Content.Close()

	body, err := io.ReadAll(out.Content)
	if err != nil {
		return "", types.NewError(types.KindMetadataUnavailable, "read "+path, err)
	}
	value := strings.TrimSpace(string(body))
	if value == "" {
		return "", types.Errorf(types.KindMetadataUnavailable, "read "+path, "empty response")
	}
	return value, nil
}

type identityDocument struct {
	Region string `json:"region"`
}

func (c *Client) region(ctx context.Context) (string, error) {
	out, err := c.api.GetDynamicData(ctx, &imds.GetDynamicDataInput{Path: pathIdentityDocument})
	if err != nil {
		return "", types.NewError(types.KindMetadataUnavailable, "read "+pathIdentityDocument, err)
	}
	defer out.Content.Close()

	var doc identityDocument
	if err := json.NewDecoder(out.Content).Decode(&doc); err != nil {
		return "", types.NewError(types.KindMetadataUnavailable, "read "+pathIdentityDocument,
			fmt.Errorf("failed to decode identity document: %w", err))
	}
	if doc.Region == "" {
		return "", types.Errorf(types.KindMetadataUnavailable, "read "+pathIdentityDocument, "identity document has no region")
	}
	return doc.Region, nil
}
