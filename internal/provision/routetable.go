package provision

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// defaultRouteCIDR is the public prefix. Without a route for it through the
// internet gateway the host is unreachable.
const defaultRouteCIDR = "0.0.0.0/0"

var (
	ErrRouteTableCreate = fmt.Errorf("failed to create route table")
	ErrNilRouteTableID  = fmt.Errorf("received no error in route table create, but the route table ID returned was nil")
)

func routeTableCreate(ctx context.Context, api API, deployment, name, vpcID string) (string, error) {
	result, err := api.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             &vpcID,
		TagSpecifications: tagSpecification(types.ResourceTypeRouteTable, deployment, name),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRouteTableCreate, err)
	}
	if result.RouteTable == nil || result.RouteTable.RouteTableId == nil {
		return "", ErrNilRouteTableID
	}
	return *result.RouteTable.RouteTableId, nil
}

var ErrRouteTableDelete = fmt.Errorf("failed to delete route table")

func routeTableDelete(ctx context.Context, api API, rtbID string) error {
	_, err := api.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{
		RouteTableId: &rtbID,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRouteTableDelete, err)
	}
	return nil
}

var ErrRouteTableRouteCreate = fmt.Errorf("failed to add route to route table")

// routeTableIGWRouteCreate routes the public prefix through the internet
// gateway.
func routeTableIGWRouteCreate(ctx context.Context, api API, rtbID, igwID string) error {
	result, err := api.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         &rtbID,
		GatewayId:            &igwID,
		DestinationCidrBlock: aws.String(defaultRouteCIDR),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRouteTableRouteCreate, err)
	}
	if result.Return == nil || !*result.Return {
		return ErrRouteTableRouteCreate
	}
	return nil
}

var ErrRouteTableAssociate = fmt.Errorf("failed to associate route table with subnet")

func routeTableAssociate(ctx context.Context, api API, rtbID, subnetID string) (string, error) {
	result, err := api.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: &rtbID,
		SubnetId:     &subnetID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRouteTableAssociate, err)
	}
	if result.AssociationId == nil {
		return "", ErrRouteTableAssociate
	}
	return *result.AssociationId, nil
}

var ErrRouteTableDisassociate = fmt.Errorf("failed to disassociate route table")

func routeTableDisassociate(ctx context.Context, api API, associationID string) error {
	_, err := api.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{
		AssociationId: &associationID,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRouteTableDisassociate, err)
	}
	return nil
}

var ErrRouteTableFind = fmt.Errorf("failed to look up route table")

// routeTableFind returns the deployment's route table, whether it already
// carries the default route, and any subnet association ID.
func routeTableFind(ctx context.Context, api API, deployment string) (rtbID string, hasDefaultRoute bool, associationID string, err error) {
	result, err := api.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []types.Filter{deploymentFilter(deployment)},
	})
	if err != nil {
		return "", false, "", fmt.Errorf("%w: %w", ErrRouteTableFind, err)
	}
	for _, rtb := range result.RouteTables {
		if rtb.RouteTableId == nil {
			continue
		}
		rtbID = *rtb.RouteTableId
		for _, route := range rtb.Routes {
			if route.DestinationCidrBlock != nil && *route.DestinationCidrBlock == defaultRouteCIDR {
				hasDefaultRoute = true
			}
		}
		for _, association := range rtb.Associations {
			if association.SubnetId != nil && association.RouteTableAssociationId != nil {
				associationID = *association.RouteTableAssociationId
			}
		}
		return rtbID, hasDefaultRoute, associationID, nil
	}
	return "", false, "", nil
}
