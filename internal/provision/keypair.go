package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"

	"github.com/nexup/nexup/internal/ssh"
)

var ErrKeyPairImport = fmt.Errorf("failed to import key pair")

// keyPairImport generates a fresh ED25519 key pair, registers the public half
// with EC2 under 'name' and writes the private half to 'keyPath' so the
// configuration channel can use it on later runs.
func keyPairImport(ctx context.Context, api API, deployment, name, keyPath string) error {
	log := clog.FromContext(ctx)

	keys, err := ssh.NewED25519KeyPair()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyPairImport, err)
	}
	pubKey, err := keys.Public.MarshalOpenSSH()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyPairImport, err)
	}

	result, err := api.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(name),
		PublicKeyMaterial: pubKey,
		TagSpecifications: tagSpecification(types.ResourceTypeKeyPair, deployment, name),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyPairImport, err)
	}
	if result.KeyPairId != nil {
		log.Debug("imported key pair", "id", *result.KeyPairId, "name", name)
	}

	pemData, err := keys.Private.MarshalOpenSSH(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyPairImport, err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return fmt.Errorf("%w: %w", ErrKeyPairImport, err)
	}
	if err := os.WriteFile(keyPath, pemData, 0o600); err != nil {
		return fmt.Errorf("%w: %w", ErrKeyPairImport, err)
	}
	log.Debug("saved private key", "path", keyPath)
	return nil
}

var ErrKeyPairDelete = fmt.Errorf("failed to delete key pair")

func keyPairDelete(ctx context.Context, api API, name, keyPath string) error {
	_, err := api.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{
		KeyName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyPairDelete, err)
	}
	if err := os.Remove(keyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %w", ErrKeyPairDelete, err)
	}
	return nil
}

var ErrKeyPairFind = fmt.Errorf("failed to look up key pair")

func keyPairFind(ctx context.Context, api API, deployment string) (string, error) {
	result, err := api.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{
		Filters: []types.Filter{deploymentFilter(deployment)},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyPairFind, err)
	}
	for _, pair := range result.KeyPairs {
		if pair.KeyName != nil {
			return *pair.KeyName, nil
		}
	}
	return "", nil
}
