package provision

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// fakeAPI is an in-memory EC2 control plane. It records every call in order
// and mutates its own state so a later survey observes what an earlier call
// created, which is exactly the convergence loop under test.
type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]error

	vpcID           string
	subnetID        string
	igwID           string
	attachedVPC     string
	rtbID           string
	hasDefaultRoute bool
	associationID   string
	sgID            string
	openRules       []ingress
	keyName         string
	instanceID      string
	publicIP        string
	instanceState   types.InstanceStateName
}

var _ API = (*fakeAPI)(nil)

// converged returns a fake whose state already allows inbound tcp on the
// given ports, with a running instance at 127.0.0.1.
func convergedFake(ports ...int32) *fakeAPI {
	var rules []ingress
	for _, port := range ports {
		rules = append(rules, ingress{protocol: "tcp", port: port})
	}
	return &fakeAPI{
		vpcID:           "vpc-1",
		subnetID:        "subnet-1",
		igwID:           "igw-1",
		attachedVPC:     "vpc-1",
		rtbID:           "rtb-1",
		hasDefaultRoute: true,
		associationID:   "rtbassoc-1",
		sgID:            "sg-1",
		openRules:       rules,
		keyName:         "forge-key",
		instanceID:      "i-1",
		publicIP:        "127.0.0.1",
		instanceState:   types.InstanceStateNameRunning,
	}
}

func (f *fakeAPI) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if err, ok := f.failOn[name]; ok {
		return err
	}
	return nil
}

// mutations filters the call log down to state-changing operations.
func (f *fakeAPI) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, call := range f.calls {
		if strings.HasPrefix(call, "Describe") {
			continue
		}
		out = append(out, call)
	}
	return out
}

func (f *fakeAPI) CreateVpc(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	if err := f.record("CreateVpc"); err != nil {
		return nil, err
	}
	f.vpcID = "vpc-1"
	return &ec2.CreateVpcOutput{Vpc: &types.Vpc{VpcId: aws.String(f.vpcID)}}, nil
}

func (f *fakeAPI) DeleteVpc(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	if err := f.record("DeleteVpc"); err != nil {
		return nil, err
	}
	f.vpcID = ""
	return &ec2.DeleteVpcOutput{}, nil
}

func (f *fakeAPI) DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	if err := f.record("DescribeVpcs"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeVpcsOutput{}
	if f.vpcID != "" {
		out.Vpcs = []types.Vpc{{VpcId: aws.String(f.vpcID)}}
	}
	return out, nil
}

func (f *fakeAPI) CreateSubnet(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error) {
	if err := f.record("CreateSubnet"); err != nil {
		return nil, err
	}
	f.subnetID = "subnet-1"
	return &ec2.CreateSubnetOutput{Subnet: &types.Subnet{SubnetId: aws.String(f.subnetID)}}, nil
}

func (f *fakeAPI) DeleteSubnet(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	if err := f.record("DeleteSubnet"); err != nil {
		return nil, err
	}
	f.subnetID = ""
	return &ec2.DeleteSubnetOutput{}, nil
}

func (f *fakeAPI) DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	if err := f.record("DescribeSubnets"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeSubnetsOutput{}
	if f.subnetID != "" {
		out.Subnets = []types.Subnet{{SubnetId: aws.String(f.subnetID)}}
	}
	return out, nil
}

func (f *fakeAPI) CreateInternetGateway(ctx context.Context, params *ec2.CreateInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error) {
	if err := f.record("CreateInternetGateway"); err != nil {
		return nil, err
	}
	f.igwID = "igw-1"
	return &ec2.CreateInternetGatewayOutput{
		InternetGateway: &types.InternetGateway{InternetGatewayId: aws.String(f.igwID)},
	}, nil
}

func (f *fakeAPI) AttachInternetGateway(ctx context.Context, params *ec2.AttachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error) {
	if err := f.record("AttachInternetGateway"); err != nil {
		return nil, err
	}
	f.attachedVPC = f.vpcID
	return &ec2.AttachInternetGatewayOutput{}, nil
}

func (f *fakeAPI) DetachInternetGateway(ctx context.Context, params *ec2.DetachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	if err := f.record("DetachInternetGateway"); err != nil {
		return nil, err
	}
	f.attachedVPC = ""
	return &ec2.DetachInternetGatewayOutput{}, nil
}

func (f *fakeAPI) DeleteInternetGateway(ctx context.Context, params *ec2.DeleteInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	if err := f.record("DeleteInternetGateway"); err != nil {
		return nil, err
	}
	f.igwID = ""
	return &ec2.DeleteInternetGatewayOutput{}, nil
}

func (f *fakeAPI) DescribeInternetGateways(ctx context.Context, params *ec2.DescribeInternetGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error) {
	if err := f.record("DescribeInternetGateways"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeInternetGatewaysOutput{}
	if f.igwID != "" {
		igw := types.InternetGateway{InternetGatewayId: aws.String(f.igwID)}
		if f.attachedVPC != "" {
			igw.Attachments = []types.InternetGatewayAttachment{{VpcId: aws.String(f.attachedVPC)}}
		}
		out.InternetGateways = []types.InternetGateway{igw}
	}
	return out, nil
}

func (f *fakeAPI) CreateRouteTable(ctx context.Context, params *ec2.CreateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error) {
	if err := f.record("CreateRouteTable"); err != nil {
		return nil, err
	}
	f.rtbID = "rtb-1"
	return &ec2.CreateRouteTableOutput{
		RouteTable: &types.RouteTable{RouteTableId: aws.String(f.rtbID)},
	}, nil
}

func (f *fakeAPI) DeleteRouteTable(ctx context.Context, params *ec2.DeleteRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error) {
	if err := f.record("DeleteRouteTable"); err != nil {
		return nil, err
	}
	f.rtbID = ""
	return &ec2.DeleteRouteTableOutput{}, nil
}

func (f *fakeAPI) DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	if err := f.record("DescribeRouteTables"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeRouteTablesOutput{}
	if f.rtbID != "" {
		rtb := types.RouteTable{RouteTableId: aws.String(f.rtbID)}
		if f.hasDefaultRoute {
			rtb.Routes = []types.Route{{DestinationCidrBlock: aws.String(defaultRouteCIDR)}}
		}
		if f.associationID != "" {
			rtb.Associations = []types.RouteTableAssociation{{
				RouteTableAssociationId: aws.String(f.associationID),
				SubnetId:                aws.String(f.subnetID),
			}}
		}
		out.RouteTables = []types.RouteTable{rtb}
	}
	return out, nil
}

func (f *fakeAPI) CreateRoute(ctx context.Context, params *ec2.CreateRouteInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	if err := f.record("CreateRoute"); err != nil {
		return nil, err
	}
	f.hasDefaultRoute = true
	return &ec2.CreateRouteOutput{Return: aws.Bool(true)}, nil
}

func (f *fakeAPI) AssociateRouteTable(ctx context.Context, params *ec2.AssociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error) {
	if err := f.record("AssociateRouteTable"); err != nil {
		return nil, err
	}
	f.associationID = "rtbassoc-1"
	return &ec2.AssociateRouteTableOutput{AssociationId: aws.String(f.associationID)}, nil
}

func (f *fakeAPI) DisassociateRouteTable(ctx context.Context, params *ec2.DisassociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateRouteTableOutput, error) {
	if err := f.record("DisassociateRouteTable"); err != nil {
		return nil, err
	}
	f.associationID = ""
	return &ec2.DisassociateRouteTableOutput{}, nil
}

func (f *fakeAPI) CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	if err := f.record("CreateSecurityGroup"); err != nil {
		return nil, err
	}
	f.sgID = "sg-1"
	return &ec2.CreateSecurityGroupOutput{GroupId: aws.String(f.sgID)}, nil
}

func (f *fakeAPI) DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	if err := f.record("DeleteSecurityGroup"); err != nil {
		return nil, err
	}
	f.sgID = ""
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

func (f *fakeAPI) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	if err := f.record("DescribeSecurityGroups"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeSecurityGroupsOutput{}
	if f.sgID != "" {
		sg := types.SecurityGroup{GroupId: aws.String(f.sgID)}
		for _, rule := range f.openRules {
			sg.IpPermissions = append(sg.IpPermissions, types.IpPermission{
				IpProtocol: aws.String(rule.protocol),
				FromPort:   aws.Int32(rule.port),
			})
		}
		out.SecurityGroups = []types.SecurityGroup{sg}
	}
	return out, nil
}

func (f *fakeAPI) AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	if err := f.record("AuthorizeSecurityGroupIngress"); err != nil {
		return nil, err
	}
	if params.FromPort != nil {
		f.openRules = append(f.openRules, ingress{
			protocol: aws.ToString(params.IpProtocol),
			port:     *params.FromPort,
		})
	}
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}

func (f *fakeAPI) ImportKeyPair(ctx context.Context, params *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error) {
	if err := f.record("ImportKeyPair"); err != nil {
		return nil, err
	}
	f.keyName = *params.KeyName
	return &ec2.ImportKeyPairOutput{
		KeyPairId: aws.String("key-1"),
		KeyName:   params.KeyName,
	}, nil
}

func (f *fakeAPI) DeleteKeyPair(ctx context.Context, params *ec2.DeleteKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error) {
	if err := f.record("DeleteKeyPair"); err != nil {
		return nil, err
	}
	f.keyName = ""
	return &ec2.DeleteKeyPairOutput{}, nil
}

func (f *fakeAPI) DescribeKeyPairs(ctx context.Context, params *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error) {
	if err := f.record("DescribeKeyPairs"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeKeyPairsOutput{}
	if f.keyName != "" {
		out.KeyPairs = []types.KeyPairInfo{{KeyName: aws.String(f.keyName)}}
	}
	return out, nil
}

func (f *fakeAPI) RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	if err := f.record("RunInstances"); err != nil {
		return nil, err
	}
	f.instanceID = "i-1"
	f.publicIP = "127.0.0.1"
	f.instanceState = types.InstanceStateNameRunning
	return &ec2.RunInstancesOutput{
		Instances: []types.Instance{{InstanceId: aws.String(f.instanceID)}},
	}, nil
}

func (f *fakeAPI) TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	if err := f.record("TerminateInstances"); err != nil {
		return nil, err
	}
	f.instanceState = types.InstanceStateNameTerminated
	return &ec2.TerminateInstancesOutput{}, nil
}

func (f *fakeAPI) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if err := f.record("DescribeInstances"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeInstancesOutput{}
	// With explicit IDs this is a waiter poll; with filters it is the survey.
	if len(params.InstanceIds) > 0 {
		out.Reservations = []types.Reservation{{
			Instances: []types.Instance{{
				InstanceId:      aws.String(f.instanceID),
				PublicIpAddress: aws.String(f.publicIP),
				State:           &types.InstanceState{Name: f.instanceState},
			}},
		}}
		return out, nil
	}
	if f.instanceID != "" && f.instanceState == types.InstanceStateNameRunning {
		out.Reservations = []types.Reservation{{
			Instances: []types.Instance{{
				InstanceId:      aws.String(f.instanceID),
				PublicIpAddress: aws.String(f.publicIP),
				State:           &types.InstanceState{Name: f.instanceState},
			}},
		}}
	}
	return out, nil
}
