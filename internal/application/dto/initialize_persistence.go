package dto

import "time"

type InitializePersistenceCommand struct {
	ReadinessTimeout       time.Duration
	ReadinessRetryInterval time.Duration
}

// ContractStatus reports one prepared table. Recreated means the recorded
// version differed and the previous rows were dropped.
type ContractStatus struct {
	Namespace string
	Version   int
	Recreated bool
}

type InitializePersistenceOutput struct {
	ReadinessAttempts int
	Contracts         []ContractStatus
}

// RecreatedContracts lists the namespaces whose rows were dropped.
func (o InitializePersistenceOutput) RecreatedContracts() []string {
	var namespaces []string
	for _, contract := range o.Contracts {
		if contract.Recreated {
			namespaces = append(namespaces, contract.Namespace)
		}
	}
	return namespaces
}
