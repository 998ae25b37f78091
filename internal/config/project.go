package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"discoveryScope/internal/discovery"
	"discoveryScope/internal/discovery/handlers"
	"discoveryScope/internal/multicall"
)

// Project describes the contracts of one project and how to discover them.
type Project struct {
	Name      string     `yaml:"name" validate:"required"`
	Network   Network    `yaml:"network"`
	Contracts []Contract `yaml:"contracts" validate:"required,min=1,dive"`
}

// Network identifies the chain and its batching contracts.
type Network struct {
	Name      string            `yaml:"name"`
	ChainID   uint64            `yaml:"chainId"`
	Multicall *MulticallProfile `yaml:"multicall" validate:"omitempty"`
}

// MulticallProfile overrides the batching contract deployments.
type MulticallProfile struct {
	V1Block   uint64 `yaml:"v1Block"`
	V1Address string `yaml:"v1Address" validate:"required,eth_addr"`
	V2Block   uint64 `yaml:"v2Block" validate:"gtefield=V1Block"`
	V2Address string `yaml:"v2Address" validate:"required,eth_addr"`
	BatchSize int    `yaml:"batchSize" validate:"gte=0"`
}

// Contract is one contract to discover.
type Contract struct {
	Name    string                         `yaml:"name" validate:"required"`
	Address string                         `yaml:"address" validate:"required,eth_addr"`
	Methods []string                       `yaml:"methods"`
	Fields  map[string]handlers.Definition `yaml:"fields" validate:"dive"`
}

var projectValidator = validator.New()

// LoadProject reads a project file. ${VAR} references are expanded from the
// environment before parsing.
func LoadProject(path string) (Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Project{}, fmt.Errorf("read project: %w", err)
	}
	return ParseProject(data)
}

// ParseProject parses and validates a project document.
func ParseProject(data []byte) (Project, error) {
	var project Project
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &project); err != nil {
		return Project{}, fmt.Errorf("parse project: %w", err)
	}
	if err := projectValidator.Struct(project); err != nil {
		return Project{}, fmt.Errorf("invalid project: %w", err)
	}

	seen := make(map[string]struct{}, len(project.Contracts))
	for _, c := range project.Contracts {
		if _, ok := seen[c.Name]; ok {
			return Project{}, fmt.Errorf("invalid project: contract %q declared twice", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return project, nil
}

// ChainIDOrDefault returns the configured chain id, defaulting to mainnet.
func (n Network) ChainIDOrDefault() uint64 {
	if n.ChainID == 0 {
		return 1
	}
	return n.ChainID
}

// MulticallConfig returns the batching configuration, falling back to the
// Ethereum mainnet deployments.
func (n Network) MulticallConfig() multicall.Config {
	if n.Multicall == nil {
		return multicall.MainnetConfig()
	}
	batchSize := n.Multicall.BatchSize
	if batchSize == 0 {
		batchSize = multicall.DefaultBatchSize
	}
	return multicall.Config{
		V1Block:   n.Multicall.V1Block,
		V1Address: common.HexToAddress(n.Multicall.V1Address),
		V2Block:   n.Multicall.V2Block,
		V2Address: common.HexToAddress(n.Multicall.V2Address),
		BatchSize: batchSize,
	}
}

// Select returns the contracts with the given names, or all of them when
// names is empty.
func (p Project) Select(names []string) ([]Contract, error) {
	if len(names) == 0 {
		return p.Contracts, nil
	}
	byName := make(map[string]Contract, len(p.Contracts))
	for _, c := range p.Contracts {
		byName[c.Name] = c
	}
	out := make([]Contract, 0, len(names))
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown contract %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

// AddressValue returns the parsed contract address.
func (c Contract) AddressValue() common.Address {
	return common.HexToAddress(c.Address)
}

// Handlers builds the contract's field handlers: one per simple method and
// one per configured field.
func (c Contract) Handlers() ([]discovery.Handler, error) {
	out, err := handlers.SimpleMethods(c.Methods)
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w", c.Name, err)
	}

	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		h, err := handlers.FromDefinition(name, c.Fields[name])
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.Name, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// Plan builds and validates the contract's discovery plan.
func (c Contract) Plan() (*discovery.Plan, error) {
	hs, err := c.Handlers()
	if err != nil {
		return nil, err
	}
	plan, err := discovery.NewPlan(hs)
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w", c.Name, err)
	}
	return plan, nil
}
