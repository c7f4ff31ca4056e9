package importer

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/config"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
)

const gigabyte = 1 << 30

// availableMemory is replaced in tests.
var availableMemory = func() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// memoryMaxSize resolves the --memory-max-size value for qlever-server.
// "auto" sizes the server at half the available memory, at least 1G.
func memoryMaxSize(configured string) (string, error) {
	if configured == "" {
		return config.DefaultMemoryMaxSize, nil
	}
	if configured != config.MemoryAuto {
		return configured, nil
	}

	available, err := availableMemory()
	if err != nil {
		return "", errors.Wrap(err, "failed to read available memory")
	}
	gb := available / 2 / gigabyte
	if gb < 1 {
		gb = 1
	}
	return fmt.Sprintf("%dG", gb), nil
}
