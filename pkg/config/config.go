package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/canopy-network/ammx/pkg/utils"
	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var defaultNetworks []byte

// Network describes the contracts and remote services of one deployment.
type Network struct {
	Name           string `yaml:"-"`
	ChainID        string `yaml:"chain_id"`
	FactoryAddress string `yaml:"factory_address"`
	RouterAddress  string `yaml:"router_address"`
	PairClassHash  string `yaml:"pair_class_hash"`
	IndexerURL     string `yaml:"indexer_url"`
	RPCURL         string `yaml:"rpc_url"`
}

// File is the root of a networks file.
type File struct {
	Networks map[string]Network `yaml:"networks"`
}

// Load reads a networks file from path.
func Load(path string) (*File, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}
	return Parse(bz)
}

// Parse decodes a networks file and validates every profile.
func Parse(bz []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(bz, &f); err != nil {
		return nil, fmt.Errorf("decode networks file: %w", err)
	}
	if len(f.Networks) == 0 {
		return nil, fmt.Errorf("networks file defines no networks")
	}
	for name, n := range f.Networks {
		n.Name = name
		if err := n.validate(); err != nil {
			return nil, fmt.Errorf("network %s: %w", name, err)
		}
		f.Networks[name] = n
	}
	return &f, nil
}

// Network returns the named profile.
func (f *File) Network(name string) (Network, error) {
	n, ok := f.Networks[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(f.Networks))
		for k := range f.Networks {
			names = append(names, k)
		}
		sort.Strings(names)
		return Network{}, fmt.Errorf("unknown network %q (known: %s)", name, strings.Join(names, ", "))
	}
	return n, nil
}

// FromEnv resolves the active network: NETWORKS_FILE (or the built-in profiles), NETWORK,
// then INDEXER_URL, STARKNET_RPC_URL and FACTORY_ADDRESS overrides.
func FromEnv() (Network, error) {
	var (
		f   *File
		err error
	)
	if path := utils.Env("NETWORKS_FILE", ""); path != "" {
		f, err = Load(path)
	} else {
		f, err = Parse(defaultNetworks)
	}
	if err != nil {
		return Network{}, err
	}

	n, err := f.Network(utils.Env("NETWORK", "mainnet"))
	if err != nil {
		return Network{}, err
	}
	n.IndexerURL = utils.Env("INDEXER_URL", n.IndexerURL)
	n.RPCURL = utils.Env("STARKNET_RPC_URL", n.RPCURL)
	n.FactoryAddress = utils.Env("FACTORY_ADDRESS", n.FactoryAddress)
	n.FactoryAddress = utils.NormalizeHex(n.FactoryAddress)

	return n, n.validate()
}

func (n Network) validate() error {
	switch {
	case n.FactoryAddress == "":
		return fmt.Errorf("factory_address is required")
	case n.IndexerURL == "":
		return fmt.Errorf("indexer_url is required")
	case n.RPCURL == "":
		return fmt.Errorf("rpc_url is required")
	}
	return nil
}
