package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/chainguard-dev/clog"

	"github.com/nexup/nexup/internal/config"
)

var (
	ErrSecurityGroupCreate = fmt.Errorf("failed to create security group")
	ErrNilSecurityGroupID  = fmt.Errorf("received no error in security group create, but the group ID returned was nil")
)

func securityGroupCreate(ctx context.Context, api API, deployment, name, vpcID string) (string, error) {
	result, err := api.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(name),
		Description:       aws.String("nexup access policy for deployment " + deployment),
		VpcId:             &vpcID,
		TagSpecifications: tagSpecification(types.ResourceTypeSecurityGroup, deployment, name),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecurityGroupCreate, err)
	}
	if result.GroupId == nil {
		return "", ErrNilSecurityGroupID
	}
	return *result.GroupId, nil
}

var ErrSecurityGroupDelete = fmt.Errorf("failed to delete security group")

func securityGroupDelete(ctx context.Context, api API, sgID string) error {
	_, err := api.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: aws.String(sgID),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSecurityGroupDelete, err)
	}
	return nil
}

var ErrSecurityGroupInboundRuleCreate = fmt.Errorf("failed to add security group rule")

// sgInboundRuleCreate authorizes one inbound rule. A rule that already
// exists is converged state, not a failure; EC2 reports it with the
// 'InvalidPermission.Duplicate' API error code.
func sgInboundRuleCreate(ctx context.Context, api API, sgID string, rule config.AccessRule) error {
	_, err := api.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		CidrIp:     aws.String(rule.Source),
		FromPort:   aws.Int32(rule.Port),
		ToPort:     aws.Int32(rule.Port),
		GroupId:    &sgID,
		IpProtocol: aws.String(rule.Protocol),
	})
	if err != nil {
		if isAPIErrorCode(err, "InvalidPermission.Duplicate") {
			clog.FromContext(ctx).Debug("inbound rule already present", "port", rule.Port)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrSecurityGroupInboundRuleCreate, err)
	}
	return nil
}

var ErrSecurityGroupFind = fmt.Errorf("failed to look up security group")

// ingress is one live inbound permission, reduced to the fields the access
// policy declares. A permission only satisfies a declared rule when both the
// protocol and the port match.
type ingress struct {
	protocol string
	port     int32
}

// securityGroupFind returns the deployment's group ID and its current
// inbound permissions.
func securityGroupFind(ctx context.Context, api API, deployment string) (string, []ingress, error) {
	result, err := api.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{deploymentFilter(deployment)},
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrSecurityGroupFind, err)
	}
	for _, sg := range result.SecurityGroups {
		if sg.GroupId == nil {
			continue
		}
		var rules []ingress
		for _, permission := range sg.IpPermissions {
			if permission.FromPort == nil || permission.IpProtocol == nil {
				continue
			}
			rules = append(rules, ingress{
				protocol: *permission.IpProtocol,
				port:     *permission.FromPort,
			})
		}
		return *sg.GroupId, rules, nil
	}
	return "", nil, nil
}

// isAPIErrorCode reports whether err carries an AWS API error with the
// provided code.
func isAPIErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}
