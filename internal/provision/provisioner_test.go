package provision

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexup/nexup/internal/config"
)

// testDoc returns a defaulted deployment document whose access policy allows
// the provided management port.
func testDoc(t *testing.T, mgmtPort int32) *config.Deployment {
	t.Helper()
	doc := &config.Deployment{
		Name: "forge",
		Instance: config.InstanceSpec{
			AMI: "ami-0f00f00",
		},
		Access: []config.AccessRule{
			{Port: mgmtPort, Protocol: "tcp", Source: "0.0.0.0/0"},
		},
	}
	doc.ApplyDefaults()
	require.NoError(t, doc.Validate())
	return doc
}

// listen opens a local TCP listener standing in for the instance's SSH port.
func listen(t *testing.T) int32 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return int32(ln.Addr().(*net.TCPAddr).Port)
}

func TestApplyCreatesChainInDependencyOrder(t *testing.T) {
	port := listen(t)
	doc := testDoc(t, port)
	fake := &fakeAPI{}
	keyPath := filepath.Join(t.TempDir(), "forge.pem")

	p := NewProvisioner(fake, doc, keyPath)
	p.sshPort = port

	host, err := p.Apply(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "i-1", host.InstanceID)
	assert.Equal(t, "127.0.0.1", host.Address)
	assert.Equal(t, "ubuntu", host.LoginUser)

	assert.Equal(t, []string{
		"CreateVpc",
		"CreateSubnet",
		"CreateInternetGateway",
		"AttachInternetGateway",
		"CreateRouteTable",
		"CreateRoute",
		"AssociateRouteTable",
		"CreateSecurityGroup",
		"AuthorizeSecurityGroupIngress",
		"ImportKeyPair",
		"RunInstances",
	}, fake.mutations())

	// The private key must land on disk, readable only by the owner.
	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestApplyOnConvergedDeploymentMutatesNothing(t *testing.T) {
	port := listen(t)
	doc := testDoc(t, port)
	fake := convergedFake(port)

	p := NewProvisioner(fake, doc, filepath.Join(t.TempDir(), "forge.pem"))
	p.sshPort = port

	host, err := p.Apply(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host.Address)
	assert.Empty(t, fake.mutations(), "a converged deployment must re-apply without any mutation")
}

func TestApplyHaltsOnFailureWithoutRollback(t *testing.T) {
	doc := testDoc(t, 22)
	fake := &fakeAPI{failOn: map[string]error{
		"CreateSubnet": fmt.Errorf("capacity exhausted"),
	}}

	p := NewProvisioner(fake, doc, filepath.Join(t.TempDir(), "forge.pem"))

	_, err := p.Apply(t.Context())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubnetCreate))

	// The VPC created before the failure must survive for the next apply.
	assert.Equal(t, []string{"CreateVpc", "CreateSubnet"}, fake.mutations())
	assert.Equal(t, "vpc-1", fake.vpcID)
}

func TestApplyResumesAfterPartialFailure(t *testing.T) {
	port := listen(t)
	doc := testDoc(t, port)
	fake := &fakeAPI{failOn: map[string]error{
		"CreateSubnet": fmt.Errorf("capacity exhausted"),
	}}

	p := NewProvisioner(fake, doc, filepath.Join(t.TempDir(), "forge.pem"))
	p.sshPort = port

	_, err := p.Apply(t.Context())
	require.Error(t, err)

	// Clear the fault; the second apply picks up where the first stopped.
	fake.failOn = nil
	fake.calls = nil

	_, err = p.Apply(t.Context())
	require.NoError(t, err)
	assert.NotContains(t, fake.mutations(), "CreateVpc")
	assert.Contains(t, fake.mutations(), "CreateSubnet")
}

func TestDestroyRemovesResourcesInReverseOrder(t *testing.T) {
	fake := convergedFake(22)
	keyPath := filepath.Join(t.TempDir(), "forge.pem")
	require.NoError(t, os.WriteFile(keyPath, []byte("key material"), 0o600))

	p := NewProvisioner(fake, testDoc(t, 22), keyPath)

	require.NoError(t, p.Destroy(t.Context()))
	assert.Equal(t, []string{
		"TerminateInstances",
		"DeleteKeyPair",
		"DeleteSecurityGroup",
		"DisassociateRouteTable",
		"DeleteRouteTable",
		"DetachInternetGateway",
		"DeleteInternetGateway",
		"DeleteSubnet",
		"DeleteVpc",
	}, fake.mutations())

	_, err := os.Stat(keyPath)
	assert.True(t, os.IsNotExist(err), "destroy must remove the private key file")
}

func TestDestroyOnEmptyAccountIsANoop(t *testing.T) {
	fake := &fakeAPI{}
	p := NewProvisioner(fake, testDoc(t, 22), filepath.Join(t.TempDir(), "forge.pem"))

	require.NoError(t, p.Destroy(t.Context()))
	assert.Empty(t, fake.mutations())
}

func TestDestroyContinuesPastFailures(t *testing.T) {
	fake := convergedFake(22)
	fake.failOn = map[string]error{
		"DeleteSecurityGroup": fmt.Errorf("dependency violation"),
	}

	p := NewProvisioner(fake, testDoc(t, 22), filepath.Join(t.TempDir(), "forge.pem"))

	err := p.Destroy(t.Context())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSecurityGroupDelete))

	// Later destructors still ran.
	assert.Contains(t, fake.mutations(), "DeleteVpc")
}

func TestPlan(t *testing.T) {
	t.Run("empty account plans the full chain", func(t *testing.T) {
		doc := testDoc(t, 22)
		p := NewProvisioner(&fakeAPI{}, doc, "")

		plan, err := p.Plan(t.Context())
		require.NoError(t, err)
		// vpc, subnet, igw, attachment, rtb, default route, association,
		// sg, key pair, instance, plus one ingress rule per access rule.
		assert.Equal(t, 10+len(doc.Access), plan.Changes())
		assert.Contains(t, plan.String(), "+ vpc")
	})

	t.Run("converged deployment plans zero changes", func(t *testing.T) {
		doc := testDoc(t, 22)
		p := NewProvisioner(convergedFake(22), doc, "")

		plan, err := p.Plan(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 0, plan.Changes())
		assert.NotContains(t, plan.String(), "+")
	})

	t.Run("udp permission does not satisfy a tcp rule", func(t *testing.T) {
		doc := testDoc(t, 22)
		fake := convergedFake()
		fake.openRules = []ingress{{protocol: "udp", port: 22}}
		p := NewProvisioner(fake, doc, "")

		plan, err := p.Plan(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 1, plan.Changes())
		assert.Contains(t, plan.String(), "+ ingress-rule (tcp/22 from 0.0.0.0/0)")
	})
}

func TestApplyAddsTCPRuleAlongsideUDPPermission(t *testing.T) {
	port := listen(t)
	doc := testDoc(t, port)
	fake := convergedFake()
	fake.openRules = []ingress{{protocol: "udp", port: port}}

	p := NewProvisioner(fake, doc, filepath.Join(t.TempDir(), "forge.pem"))
	p.sshPort = port

	_, err := p.Apply(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"AuthorizeSecurityGroupIngress"}, fake.mutations())
	assert.Contains(t, fake.openRules, ingress{protocol: "tcp", port: port})
}
