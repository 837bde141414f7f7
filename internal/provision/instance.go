package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
)

// rootDeviceName is where Ubuntu AMIs expect their root EBS volume.
const rootDeviceName = "/dev/sda1"

var (
	ErrInstanceRun   = fmt.Errorf("failed to launch instance")
	ErrNilInstanceID = fmt.Errorf("received no error in instance launch, but no instance ID was returned")
)

type instanceSpec struct {
	ami             string
	instanceType    types.InstanceType
	rootVolumeGB    int32
	subnetID        string
	securityGroupID string
	keyName         string
	userData        string
}

func instanceRun(ctx context.Context, api API, deployment, name string, spec instanceSpec) (string, error) {
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(spec.ami),
		InstanceType: spec.instanceType,
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		KeyName:      aws.String(spec.keyName),
		NetworkInterfaces: []types.InstanceNetworkInterfaceSpecification{{
			DeviceIndex:              aws.Int32(0),
			SubnetId:                 aws.String(spec.subnetID),
			AssociatePublicIpAddress: aws.Bool(true),
			Groups:                   []string{spec.securityGroupID},
		}},
		BlockDeviceMappings: []types.BlockDeviceMapping{{
			DeviceName: aws.String(rootDeviceName),
			Ebs: &types.EbsBlockDevice{
				VolumeSize:          aws.Int32(spec.rootVolumeGB),
				VolumeType:          types.VolumeTypeGp3,
				DeleteOnTermination: aws.Bool(true),
			},
		}},
		TagSpecifications: tagSpecification(types.ResourceTypeInstance, deployment, name),
	}
	if spec.userData != "" {
		input.UserData = aws.String(spec.userData)
	}

	result, err := api.RunInstances(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInstanceRun, err)
	}
	if len(result.Instances) == 0 || result.Instances[0].InstanceId == nil {
		return "", ErrNilInstanceID
	}

	id := *result.Instances[0].InstanceId
	clog.FromContext(ctx).Info("launched instance", "id", id)
	return id, nil
}

var ErrInstanceAwait = fmt.Errorf("failed waiting for instance to enter running state")

// instanceAwaitRunning blocks until the instance reports the running state and
// returns its public IP address. Waiter knobs are exposed so tests can shrink
// the poll interval.
func instanceAwaitRunning(ctx context.Context, api API, instanceID string, opts ...func(*ec2.InstanceRunningWaiterOptions)) (string, error) {
	log := clog.FromContext(ctx).With("id", instanceID)
	log.Debug("waiting for instance to enter running state")

	waiter := ec2.NewInstanceRunningWaiter(api, opts...)
	output, err := waiter.WaitForOutput(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, time.Hour)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInstanceAwait, err)
	}

	if len(output.Reservations) == 0 || len(output.Reservations[0].Instances) == 0 {
		return "", ErrInstanceAwait
	}
	inst := output.Reservations[0].Instances[0]
	if inst.PublicIpAddress == nil {
		return "", fmt.Errorf("%w: instance has no public IP", ErrInstanceAwait)
	}
	log.Debug("instance is running", "ip", *inst.PublicIpAddress)
	return *inst.PublicIpAddress, nil
}

var ErrInstanceTerminate = fmt.Errorf("failed to terminate instance")

// instanceTerminate terminates the instance and waits for the terminated
// state so the network interface releases its grip on the subnet and security
// group before those are deleted.
func instanceTerminate(ctx context.Context, api API, instanceID string, opts ...func(*ec2.InstanceTerminatedWaiterOptions)) error {
	log := clog.FromContext(ctx).With("id", instanceID)
	log.Info("terminating instance")

	_, err := api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInstanceTerminate, err)
	}

	waiter := ec2.NewInstanceTerminatedWaiter(api, opts...)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, time.Hour); err != nil {
		return fmt.Errorf("%w: %w", ErrInstanceTerminate, err)
	}
	log.Info("instance terminated")
	return nil
}

var ErrInstanceFind = fmt.Errorf("failed to look up instance")

// instanceFind returns the deployment's live instance and its public IP, both
// empty if no instance exists. Terminated and shutting-down instances do not
// count: a replacement launch must be able to proceed.
func instanceFind(ctx context.Context, api API, deployment string) (instanceID, publicIP string, err error) {
	result, err := api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			deploymentFilter(deployment),
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{"pending", "running"},
			},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInstanceFind, err)
	}
	for _, reservation := range result.Reservations {
		for _, inst := range reservation.Instances {
			if inst.InstanceId == nil {
				continue
			}
			instanceID = *inst.InstanceId
			if inst.PublicIpAddress != nil {
				publicIP = *inst.PublicIpAddress
			}
			return instanceID, publicIP, nil
		}
	}
	return "", "", nil
}
