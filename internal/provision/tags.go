package provision

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

const (
	// tagKeyName is the well-known AWS display-name tag.
	tagKeyName = "Name"
	// tagKeyDeployment carries the deployment name. It is the discovery
	// key: every survey filters on it, which is what makes re-apply
	// converge on existing resources instead of duplicating them.
	tagKeyDeployment = "nexup:deployment"
	// tagKeyManagedBy marks resources safe for 'nexup destroy'.
	tagKeyManagedBy     = "nexup:managed-by"
	tagDefaultManagedBy = "nexup"
)

// tagSpecification produces the tag metadata attached to every created
// resource: its display name plus the deployment discovery tags.
func tagSpecification(rt types.ResourceType, deployment, name string) []types.TagSpecification {
	return []types.TagSpecification{
		{
			ResourceType: rt,
			Tags:         deploymentTags(deployment, name),
		},
	}
}

func deploymentTags(deployment, name string) []types.Tag {
	return []types.Tag{
		{
			Key:   aws.String(tagKeyName),
			Value: aws.String(name),
		},
		{
			Key:   aws.String(tagKeyDeployment),
			Value: aws.String(deployment),
		},
		{
			Key:   aws.String(tagKeyManagedBy),
			Value: aws.String(tagDefaultManagedBy),
		},
	}
}

// deploymentFilter matches resources carrying the deployment discovery tag.
func deploymentFilter(deployment string) types.Filter {
	return types.Filter{
		Name:   aws.String("tag:" + tagKeyDeployment),
		Values: []string{deployment},
	}
}
