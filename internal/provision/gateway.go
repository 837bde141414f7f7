package provision

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

var (
	ErrInternetGatewayCreate = fmt.Errorf("failed to create internet gateway")
	ErrNilInternetGatewayID  = fmt.Errorf("received no error in internet gateway create, but the internet gateway ID returned was nil")
)

func internetGatewayCreate(ctx context.Context, api API, deployment, name string) (string, error) {
	igwResult, err := api.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: tagSpecification(types.ResourceTypeInternetGateway, deployment, name),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInternetGatewayCreate, err)
	}
	if igwResult.InternetGateway == nil || igwResult.InternetGateway.InternetGatewayId == nil {
		return "", ErrNilInternetGatewayID
	}
	return *igwResult.InternetGateway.InternetGatewayId, nil
}

var ErrInternetGatewayAttach = fmt.Errorf("failed to attach internet gateway to VPC")

func internetGatewayAttach(ctx context.Context, api API, vpcID, igwID string) error {
	_, err := api.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		VpcId:             &vpcID,
		InternetGatewayId: &igwID,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternetGatewayAttach, err)
	}
	return nil
}

var ErrInternetGatewayDetach = fmt.Errorf("failed to detach internet gateway")

func internetGatewayDetach(ctx context.Context, api API, vpcID, igwID string) error {
	_, err := api.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
		InternetGatewayId: &igwID,
		VpcId:             &vpcID,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternetGatewayDetach, err)
	}
	return nil
}

var ErrInternetGatewayDelete = fmt.Errorf("failed to delete internet gateway")

func internetGatewayDelete(ctx context.Context, api API, igwID string) error {
	_, err := api.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
		InternetGatewayId: &igwID,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternetGatewayDelete, err)
	}
	return nil
}

var ErrInternetGatewayFind = fmt.Errorf("failed to look up internet gateway")

// internetGatewayFind returns the deployment's gateway ID and the VPC it is
// attached to, both empty if absent.
func internetGatewayFind(ctx context.Context, api API, deployment string) (igwID, attachedVPC string, err error) {
	result, err := api.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []types.Filter{deploymentFilter(deployment)},
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInternetGatewayFind, err)
	}
	for _, igw := range result.InternetGateways {
		if igw.InternetGatewayId == nil {
			continue
		}
		igwID = *igw.InternetGatewayId
		for _, attachment := range igw.Attachments {
			if attachment.VpcId != nil {
				attachedVPC = *attachment.VpcId
			}
		}
		return igwID, attachedVPC, nil
	}
	return "", "", nil
}
