package provision

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

var (
	ErrSubnetCreate = fmt.Errorf("failed to create subnet")
	ErrNilSubnetID  = fmt.Errorf("received no error in subnet create, but the subnet ID returned was nil")
)

func subnetCreate(ctx context.Context, api API, deployment, name, vpcID, subnetCIDR, availabilityZone string) (string, error) {
	input := &ec2.CreateSubnetInput{
		VpcId:             &vpcID,
		CidrBlock:         &subnetCIDR,
		TagSpecifications: tagSpecification(types.ResourceTypeSubnet, deployment, name),
	}
	// Only set AvailabilityZone if provided; otherwise EC2 picks one.
	if availabilityZone != "" {
		input.AvailabilityZone = &availabilityZone
	}

	result, err := api.CreateSubnet(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubnetCreate, err)
	}
	if result.Subnet == nil || result.Subnet.SubnetId == nil {
		return "", fmt.Errorf("%w: %w", ErrSubnetCreate, ErrNilSubnetID)
	}
	return *result.Subnet.SubnetId, nil
}

var ErrSubnetDelete = fmt.Errorf("failed to delete subnet")

func subnetDelete(ctx context.Context, api API, subnetID string) error {
	_, err := api.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{
		SubnetId: aws.String(subnetID),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubnetDelete, err)
	}
	return nil
}

var ErrSubnetFind = fmt.Errorf("failed to look up subnet")

func subnetFind(ctx context.Context, api API, deployment string) (string, error) {
	result, err := api.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{deploymentFilter(deployment)},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubnetFind, err)
	}
	for _, subnet := range result.Subnets {
		if subnet.SubnetId != nil {
			return *subnet.SubnetId, nil
		}
	}
	return "", nil
}
