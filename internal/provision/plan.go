package provision

import (
	"fmt"
	"strings"

	"github.com/nexup/nexup/internal/config"
)

// Action is what apply would do for one step.
type Action string

const (
	ActionCreate Action = "create"
	ActionNone   Action = "none"
)

// Kind names one resource kind in the dependency chain.
type Kind string

const (
	KindVPC              Kind = "vpc"
	KindSubnet           Kind = "subnet"
	KindInternetGateway  Kind = "internet-gateway"
	KindGatewayAttach    Kind = "gateway-attachment"
	KindRouteTable       Kind = "route-table"
	KindDefaultRoute     Kind = "default-route"
	KindRouteAssociation Kind = "route-table-association"
	KindSecurityGroup    Kind = "security-group"
	KindIngressRule      Kind = "ingress-rule"
	KindKeyPair          Kind = "key-pair"
	KindInstance         Kind = "instance"
)

// Step is one planned operation. Detail carries a human hint (a CIDR, a
// port) for plan rendering.
type Step struct {
	Kind   Kind
	Action Action
	Detail string
}

// Plan is the ordered set of steps apply would execute. The order is the
// dependency order of the resource chain; apply never reorders it.
type Plan struct {
	Deployment string
	Steps      []Step
}

// buildPlan diffs the declared deployment against the live survey. Every
// resource kind appears exactly once (ingress rules once per declared rule)
// so the rendered plan reads as the full chain, converged steps included.
func buildPlan(doc *config.Deployment, live *Live) *Plan {
	plan := &Plan{Deployment: doc.Name}
	add := func(kind Kind, exists bool, detail string) {
		action := ActionCreate
		if exists {
			action = ActionNone
		}
		plan.Steps = append(plan.Steps, Step{Kind: kind, Action: action, Detail: detail})
	}

	add(KindVPC, live.VPCID != "", doc.Network.VPCCIDR)
	add(KindSubnet, live.SubnetID != "", doc.Network.SubnetCIDR)
	add(KindInternetGateway, live.InternetGateway != "", "")
	add(KindGatewayAttach, live.GatewayAttachedTo != "", "")
	add(KindRouteTable, live.RouteTableID != "", "")
	add(KindDefaultRoute, live.HasDefaultRoute, defaultRouteCIDR)
	add(KindRouteAssociation, live.AssociationID != "", "")
	add(KindSecurityGroup, live.SecurityGroupID != "", "")
	for _, rule := range doc.Access {
		add(KindIngressRule, live.SecurityGroupID != "" && live.allowsRule(rule),
			fmt.Sprintf("%s/%d from %s", rule.Protocol, rule.Port, rule.Source))
	}
	add(KindKeyPair, live.KeyName != "", "")
	add(KindInstance, live.InstanceID != "", doc.Instance.AMI)

	return plan
}

// Changes counts the steps apply would actually execute.
func (p *Plan) Changes() int {
	n := 0
	for _, step := range p.Steps {
		if step.Action != ActionNone {
			n++
		}
	}
	return n
}

func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deployment %q: %d change(s)\n", p.Deployment, p.Changes())
	for _, step := range p.Steps {
		marker := " "
		if step.Action == ActionCreate {
			marker = "+"
		}
		if step.Detail != "" {
			fmt.Fprintf(&b, "  %s %s (%s)\n", marker, step.Kind, step.Detail)
		} else {
			fmt.Fprintf(&b, "  %s %s\n", marker, step.Kind)
		}
	}
	return b.String()
}
