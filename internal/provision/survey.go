package provision

import (
	"context"

	"github.com/nexup/nexup/internal/config"
)

// Live is a snapshot of what currently exists in the cloud for one
// deployment, gathered purely through the discovery tag. Empty IDs mean the
// resource is absent.
type Live struct {
	VPCID             string
	SubnetID          string
	InternetGateway   string
	GatewayAttachedTo string
	RouteTableID      string
	HasDefaultRoute   bool
	AssociationID     string
	SecurityGroupID   string
	OpenRules         []ingress
	KeyName           string
	InstanceID        string
	PublicIP          string
}

// survey inspects the account for every resource kind the deployment can
// own. It never mutates anything; both planning and destruction start here.
func survey(ctx context.Context, api API, deployment string) (*Live, error) {
	live := &Live{}
	var err error

	if live.VPCID, err = vpcFind(ctx, api, deployment); err != nil {
		return nil, err
	}
	if live.SubnetID, err = subnetFind(ctx, api, deployment); err != nil {
		return nil, err
	}
	if live.InternetGateway, live.GatewayAttachedTo, err = internetGatewayFind(ctx, api, deployment); err != nil {
		return nil, err
	}
	if live.RouteTableID, live.HasDefaultRoute, live.AssociationID, err = routeTableFind(ctx, api, deployment); err != nil {
		return nil, err
	}
	if live.SecurityGroupID, live.OpenRules, err = securityGroupFind(ctx, api, deployment); err != nil {
		return nil, err
	}
	if live.KeyName, err = keyPairFind(ctx, api, deployment); err != nil {
		return nil, err
	}
	if live.InstanceID, live.PublicIP, err = instanceFind(ctx, api, deployment); err != nil {
		return nil, err
	}
	return live, nil
}

// allowsRule reports whether the live security group already carries an
// inbound permission matching the declared rule's protocol and port.
func (l *Live) allowsRule(rule config.AccessRule) bool {
	for _, open := range l.OpenRules {
		if open.protocol == rule.Protocol && open.port == rule.Port {
			return true
		}
	}
	return false
}
