package provision

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
)

var (
	ErrVPCCreate = fmt.Errorf("failed VPC creation")
	ErrNilVPCID  = fmt.Errorf("received no error in VPC create, but the VPC ID returned was nil")
)

func vpcCreate(ctx context.Context, api API, deployment, vpcName, vpcCIDR string) (string, error) {
	log := clog.FromContext(ctx).With("name", vpcName, "cidr", vpcCIDR)
	log.Debug("creating VPC")
	result, err := api.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(vpcCIDR),
		TagSpecifications: tagSpecification(types.ResourceTypeVpc, deployment, vpcName),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVPCCreate, err)
	}
	if result.Vpc == nil || result.Vpc.VpcId == nil {
		return "", ErrNilVPCID
	}
	log.Debug("created VPC successfully")
	return *result.Vpc.VpcId, nil
}

var ErrVPCDelete = fmt.Errorf("failed to delete VPC")

func vpcDelete(ctx context.Context, api API, vpcID string) error {
	_, err := api.DeleteVpc(ctx, &ec2.DeleteVpcInput{
		VpcId: aws.String(vpcID),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVPCDelete, err)
	}
	return nil
}

var ErrVPCFind = fmt.Errorf("failed to look up VPC")

// vpcFind locates the deployment's VPC by discovery tag. An empty string
// means no VPC exists yet.
func vpcFind(ctx context.Context, api API, deployment string) (string, error) {
	result, err := api.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{deploymentFilter(deployment)},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVPCFind, err)
	}
	for _, vpc := range result.Vpcs {
		if vpc.VpcId != nil {
			return *vpc.VpcId, nil
		}
	}
	return "", nil
}
