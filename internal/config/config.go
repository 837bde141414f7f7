// Package config defines and loads the desired-state documents nexup
// converges on: the deployment document (network topology, access rules,
// compute host) and the tool-level settings.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"
)

// Deployment is the desired-state document for one nexup deployment: an
// isolated network, one routable subnet, an access policy and a single
// compute host.
type Deployment struct {
	// Name identifies the deployment. It becomes part of every resource
	// name and the resource discovery tag, so re-applying the same document
	// converges instead of duplicating.
	Name string `yaml:"name"`

	// Region is the AWS region resources are created in.
	Region string `yaml:"region"`

	Network  NetworkSpec  `yaml:"network"`
	Access   []AccessRule `yaml:"access"`
	Instance InstanceSpec `yaml:"instance"`
	Nexus    NexusSpec    `yaml:"nexus"`
}

// NetworkSpec declares the isolation boundary and its one routable subnet.
type NetworkSpec struct {
	VPCCIDR          string `yaml:"vpc_cidr"`
	SubnetCIDR       string `yaml:"subnet_cidr"`
	AvailabilityZone string `yaml:"availability_zone"`
}

// AccessRule is one inbound allow rule of the access policy. Outbound is
// always unrestricted.
type AccessRule struct {
	Port     int32  `yaml:"port"`
	Protocol string `yaml:"protocol"`
	Source   string `yaml:"source"`
}

// InstanceSpec declares the compute host.
type InstanceSpec struct {
	AMI          string `yaml:"ami"`
	Type         string `yaml:"type"`
	RootVolumeGB int32  `yaml:"root_volume_gb"`

	// LoginUser is the remote management account, recorded in the host
	// record for the configuration stage.
	LoginUser string `yaml:"login_user"`
}

// NexusSpec declares the Nexus Repository Manager installation.
type NexusSpec struct {
	Version     string `yaml:"version"`
	DownloadURL string `yaml:"download_url"`
	Port        int32  `yaml:"port"`
}

const (
	defaultRegion       = "us-west-2"
	defaultVPCCIDR      = "10.0.0.0/16"
	defaultSubnetCIDR   = "10.0.1.0/24"
	defaultInstanceType = "t3.medium"
	defaultRootVolumeGB = 50
	defaultLoginUser    = "ubuntu"
	defaultNexusVersion = "3.70.1-02"
	defaultNexusPort    = 8081

	// PortSSH is the management channel port. The configuration stage
	// cannot reach the host without an inbound rule for it.
	PortSSH = 22
)

// LoadDeployment reads, defaults and validates a deployment document.
func LoadDeployment(path string) (*Deployment, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment document: %w", err)
	}
	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deployment document: %w", err)
	}
	d.ApplyDefaults()
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("deployment document validation failed: %w", err)
	}
	return &d, nil
}

// ApplyDefaults fills every optional field with its default value.
func (d *Deployment) ApplyDefaults() {
	if d.Region == "" {
		d.Region = defaultRegion
	}
	if d.Network.VPCCIDR == "" {
		d.Network.VPCCIDR = defaultVPCCIDR
	}
	if d.Network.SubnetCIDR == "" {
		d.Network.SubnetCIDR = defaultSubnetCIDR
	}
	if d.Instance.Type == "" {
		d.Instance.Type = defaultInstanceType
	}
	if d.Instance.RootVolumeGB == 0 {
		d.Instance.RootVolumeGB = defaultRootVolumeGB
	}
	if d.Instance.LoginUser == "" {
		d.Instance.LoginUser = defaultLoginUser
	}
	if d.Nexus.Version == "" {
		d.Nexus.Version = defaultNexusVersion
	}
	if d.Nexus.Port == 0 {
		d.Nexus.Port = defaultNexusPort
	}
	if len(d.Access) == 0 {
		d.Access = []AccessRule{
			{Port: PortSSH, Protocol: "tcp", Source: "0.0.0.0/0"},
			{Port: d.Nexus.Port, Protocol: "tcp", Source: "0.0.0.0/0"},
		}
	}
	for i := range d.Access {
		if d.Access[i].Protocol == "" {
			d.Access[i].Protocol = "tcp"
		}
		if d.Access[i].Source == "" {
			d.Access[i].Source = "0.0.0.0/0"
		}
	}
}

var (
	ErrNoName          = fmt.Errorf("deployment document has no name")
	ErrNoAMI           = fmt.Errorf("deployment document declares no AMI")
	ErrBadCIDR         = fmt.Errorf("invalid CIDR block")
	ErrSubnetOutsideVP = fmt.Errorf("subnet CIDR is not contained in the VPC CIDR")
	ErrBadRule         = fmt.Errorf("invalid access rule")
)

// Validate checks the document is internally consistent. It deliberately
// does NOT require an SSH rule; a policy without one is valid topology whose
// configuration stage will fail with a connection-class error.
func (d *Deployment) Validate() error {
	if d.Name == "" {
		return ErrNoName
	}
	if d.Instance.AMI == "" {
		return ErrNoAMI
	}
	vpc, err := netip.ParsePrefix(d.Network.VPCCIDR)
	if err != nil {
		return fmt.Errorf("%w: vpc_cidr %q: %w", ErrBadCIDR, d.Network.VPCCIDR, err)
	}
	subnet, err := netip.ParsePrefix(d.Network.SubnetCIDR)
	if err != nil {
		return fmt.Errorf("%w: subnet_cidr %q: %w", ErrBadCIDR, d.Network.SubnetCIDR, err)
	}
	if !vpc.Contains(subnet.Addr()) || subnet.Bits() < vpc.Bits() {
		return fmt.Errorf("%w: %s not within %s", ErrSubnetOutsideVP, subnet, vpc)
	}
	for _, rule := range d.Access {
		if rule.Port < 1 || rule.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrBadRule, rule.Port)
		}
		if rule.Protocol != "tcp" && rule.Protocol != "udp" {
			return fmt.Errorf("%w: unsupported protocol %q", ErrBadRule, rule.Protocol)
		}
		if _, err := netip.ParsePrefix(rule.Source); err != nil {
			return fmt.Errorf("%w: source %q is not a CIDR: %w", ErrBadRule, rule.Source, err)
		}
	}
	return nil
}

// AllowsPort reports whether the access policy has an inbound tcp rule for
// the provided port.
func (d *Deployment) AllowsPort(port int32) bool {
	for _, rule := range d.Access {
		if rule.Port == port && rule.Protocol == "tcp" {
			return true
		}
	}
	return false
}
