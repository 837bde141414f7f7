package provision

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/nexup/nexup/internal/config"
)

// Host is the one output of a successful apply: enough to reach the machine
// over SSH and to publish its record in the registry.
type Host struct {
	InstanceID string
	Address    string
	LoginUser  string
}

// Provisioner converges one deployment's cloud resources towards its
// declaration. Apply creates what is missing in dependency order and halts on
// the first failure without tearing anything down; the next apply picks up
// from whatever survived.
type Provisioner struct {
	api     API
	doc     *config.Deployment
	keyPath string

	// sshPort and the waiter knobs exist so tests can point reachability
	// checks at a local listener and shrink poll intervals.
	sshPort        int32
	runWaiterOpts  []func(*ec2.InstanceRunningWaiterOptions)
	termWaiterOpts []func(*ec2.InstanceTerminatedWaiterOptions)
	reachTimeout   time.Duration
}

func NewProvisioner(api API, doc *config.Deployment, keyPath string) *Provisioner {
	return &Provisioner{
		api:          api,
		doc:          doc,
		keyPath:      keyPath,
		sshPort:      config.PortSSH,
		reachTimeout: 10 * time.Minute,
	}
}

// NewAPI builds a real EC2 client for the deployment's region from the
// ambient AWS credential chain.
func NewAPI(ctx context.Context, region string) (API, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return ec2.NewFromConfig(cfg), nil
}

// Plan surveys the account and reports what apply would do, without mutating
// anything.
func (p *Provisioner) Plan(ctx context.Context) (*Plan, error) {
	live, err := survey(ctx, p.api, p.doc.Name)
	if err != nil {
		return nil, err
	}
	return buildPlan(p.doc, live), nil
}

// Apply converges the deployment and returns the resulting host. Each
// resource is created only if the survey found it absent, so re-applying a
// converged deployment performs no mutations at all.
func (p *Provisioner) Apply(ctx context.Context) (*Host, error) {
	log := clog.FromContext(ctx).With("deployment", p.doc.Name)

	live, err := survey(ctx, p.api, p.doc.Name)
	if err != nil {
		return nil, err
	}

	vpcID := live.VPCID
	if vpcID == "" {
		if vpcID, err = vpcCreate(ctx, p.api, p.doc.Name, p.name("vpc"), p.doc.Network.VPCCIDR); err != nil {
			return nil, err
		}
	}

	subnetID := live.SubnetID
	if subnetID == "" {
		if subnetID, err = subnetCreate(ctx, p.api, p.doc.Name, p.name("subnet"), vpcID, p.doc.Network.SubnetCIDR, p.doc.Network.AvailabilityZone); err != nil {
			return nil, err
		}
	}

	igwID := live.InternetGateway
	if igwID == "" {
		if igwID, err = internetGatewayCreate(ctx, p.api, p.doc.Name, p.name("igw")); err != nil {
			return nil, err
		}
	}
	if live.GatewayAttachedTo == "" {
		if err := internetGatewayAttach(ctx, p.api, vpcID, igwID); err != nil {
			return nil, err
		}
	}

	rtbID := live.RouteTableID
	if rtbID == "" {
		if rtbID, err = routeTableCreate(ctx, p.api, p.doc.Name, p.name("rtb"), vpcID); err != nil {
			return nil, err
		}
	}
	if !live.HasDefaultRoute {
		if err := routeTableIGWRouteCreate(ctx, p.api, rtbID, igwID); err != nil {
			return nil, err
		}
	}
	if live.AssociationID == "" {
		if _, err := routeTableAssociate(ctx, p.api, rtbID, subnetID); err != nil {
			return nil, err
		}
	}

	sgID := live.SecurityGroupID
	if sgID == "" {
		if sgID, err = securityGroupCreate(ctx, p.api, p.doc.Name, p.name("sg"), vpcID); err != nil {
			return nil, err
		}
	}
	for _, rule := range p.doc.Access {
		if live.SecurityGroupID != "" && live.allowsRule(rule) {
			continue
		}
		if err := sgInboundRuleCreate(ctx, p.api, sgID, rule); err != nil {
			return nil, err
		}
	}

	keyName := live.KeyName
	if keyName == "" {
		keyName = p.name("key")
		if err := keyPairImport(ctx, p.api, p.doc.Name, keyName, p.keyPath); err != nil {
			return nil, err
		}
	}

	instanceID := live.InstanceID
	publicIP := live.PublicIP
	if instanceID == "" {
		instanceID, err = instanceRun(ctx, p.api, p.doc.Name, p.name("host"), instanceSpec{
			ami:             p.doc.Instance.AMI,
			instanceType:    types.InstanceType(p.doc.Instance.Type),
			rootVolumeGB:    p.doc.Instance.RootVolumeGB,
			subnetID:        subnetID,
			securityGroupID: sgID,
			keyName:         keyName,
			userData:        buildUserData(p.doc.Instance.LoginUser),
		})
		if err != nil {
			return nil, err
		}
		publicIP = ""
	}
	if publicIP == "" {
		if publicIP, err = instanceAwaitRunning(ctx, p.api, instanceID, p.runWaiterOpts...); err != nil {
			return nil, err
		}
	}

	if p.doc.AllowsPort(p.sshPort) {
		waitCtx, cancel := context.WithTimeout(ctx, p.reachTimeout)
		defer cancel()
		if err := waitTCP(waitCtx, publicIP, uint16(p.sshPort)); err != nil {
			return nil, fmt.Errorf("instance %s never became reachable on port %d: %w", instanceID, p.sshPort, err)
		}
	} else {
		log.Warn("access policy does not allow the SSH port, skipping reachability wait", "port", p.sshPort)
	}

	log.Info("deployment converged", "instance", instanceID, "address", publicIP)
	return &Host{
		InstanceID: instanceID,
		Address:    publicIP,
		LoginUser:  p.doc.Instance.LoginUser,
	}, nil
}

// Destroy removes everything the survey attributes to the deployment, in
// reverse dependency order. Resources the survey does not find are skipped.
func (p *Provisioner) Destroy(ctx context.Context) error {
	live, err := survey(ctx, p.api, p.doc.Name)
	if err != nil {
		return err
	}

	stack := &Stack{}
	if live.VPCID != "" {
		stack.Push(func(ctx context.Context) error {
			return vpcDelete(ctx, p.api, live.VPCID)
		})
	}
	if live.SubnetID != "" {
		stack.Push(func(ctx context.Context) error {
			return subnetDelete(ctx, p.api, live.SubnetID)
		})
	}
	if live.InternetGateway != "" {
		stack.Push(func(ctx context.Context) error {
			if live.GatewayAttachedTo != "" {
				if err := internetGatewayDetach(ctx, p.api, live.GatewayAttachedTo, live.InternetGateway); err != nil {
					return err
				}
			}
			return internetGatewayDelete(ctx, p.api, live.InternetGateway)
		})
	}
	if live.RouteTableID != "" {
		stack.Push(func(ctx context.Context) error {
			if live.AssociationID != "" {
				if err := routeTableDisassociate(ctx, p.api, live.AssociationID); err != nil {
					return err
				}
			}
			return routeTableDelete(ctx, p.api, live.RouteTableID)
		})
	}
	if live.SecurityGroupID != "" {
		stack.Push(func(ctx context.Context) error {
			return securityGroupDelete(ctx, p.api, live.SecurityGroupID)
		})
	}
	if live.KeyName != "" {
		stack.Push(func(ctx context.Context) error {
			return keyPairDelete(ctx, p.api, live.KeyName, p.keyPath)
		})
	}
	if live.InstanceID != "" {
		stack.Push(func(ctx context.Context) error {
			return instanceTerminate(ctx, p.api, live.InstanceID, p.termWaiterOpts...)
		})
	}
	return stack.Destroy(ctx)
}

func (p *Provisioner) name(suffix string) string {
	return p.doc.Name + "-" + suffix
}
