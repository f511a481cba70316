package model

import "fmt"

const ComputeCPUMetric = "CPUUtilization"

// Memory is only published by the CloudWatch agent.
var ComputeMemoryMetrics = map[string]ServiceKind{
	"mem_used_percent":      ComputeAgent,
	"mem_available_percent": ComputeAgent,
	"mem_used":              ComputeAgent,
	"mem_available":         ComputeAgent,
	"mem_free":              ComputeAgent,
	"mem_total":             ComputeAgent,
	"mem_cached":            ComputeAgent,
	"mem_buffered":          ComputeAgent,
	"swap_used_percent":     ComputeAgent,
}

var ComputeDiskMetrics = map[string]ServiceKind{
	"DiskReadBytes":      Compute,
	"DiskWriteBytes":     Compute,
	"DiskReadOps":        Compute,
	"DiskWriteOps":       Compute,
	"EBSReadBytes":       Compute,
	"EBSWriteBytes":      Compute,
	"EBSReadOps":         Compute,
	"EBSWriteOps":        Compute,
	"EBSIOBalance%":      Compute,
	"EBSByteBalance%":    Compute,
	"disk_used_percent":  ComputeAgent,
	"disk_used":          ComputeAgent,
	"disk_free":          ComputeAgent,
	"disk_total":         ComputeAgent,
	"disk_inodes_free":   ComputeAgent,
	"diskio_read_bytes":  ComputeAgent,
	"diskio_write_bytes": ComputeAgent,
}

var ManagedDatabaseMetrics = map[string]ServiceKind{
	"CPUUtilization":            ManagedDatabase,
	"CPUCreditBalance":          ManagedDatabase,
	"DatabaseConnections":       ManagedDatabase,
	"DiskQueueDepth":            ManagedDatabase,
	"FreeableMemory":            ManagedDatabase,
	"FreeStorageSpace":          ManagedDatabase,
	"NetworkReceiveThroughput":  ManagedDatabase,
	"NetworkTransmitThroughput": ManagedDatabase,
	"ReadIOPS":                  ManagedDatabase,
	"ReadLatency":               ManagedDatabase,
	"ReadThroughput":            ManagedDatabase,
	"ReplicaLag":                ManagedDatabase,
	"SwapUsage":                 ManagedDatabase,
	"WriteIOPS":                 ManagedDatabase,
	"WriteLatency":              ManagedDatabase,
	"WriteThroughput":           ManagedDatabase,
}

// LookupMetric returns the service that publishes name within table.
func LookupMetric(table map[string]ServiceKind, name string) (ServiceKind, error) {
	kind, ok := table[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMetric, name)
	}
	return kind, nil
}
