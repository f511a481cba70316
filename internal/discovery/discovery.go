package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/mtanda/cloud-instance-metrics/internal/model"
)

const (
	// page sizes are the API maximums
	EC2MaxResults = 1000
	RDSMaxRecords = 100
)

type EC2API interface {
	ec2.DescribeInstancesAPIClient
}

type RDSAPI interface {
	rds.DescribeDBInstancesAPIClient
}

// Lister lists every instance of one service visible to its client.
type Lister interface {
	Kind() model.ServiceKind
	ListInstanceIDs(ctx context.Context) ([]string, error)
}

// ResolveInstanceIDs returns explicit unchanged when it is not empty and the
// full listing otherwise. An empty result is not an error.
func ResolveInstanceIDs(ctx context.Context, explicit []string, lister Lister) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	ids, err := lister.ListInstanceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s instances: %w", lister.Kind(), err)
	}
	slog.Debug("discovered instances", "service", lister.Kind().String(), "count", len(ids))
	return ids, nil
}

type ComputeLister struct {
	client EC2API
}

func NewComputeLister(client EC2API) *ComputeLister {
	return &ComputeLister{client: client}
}

func (l *ComputeLister) Kind() model.ServiceKind {
	return model.Compute
}

func (l *ComputeLister) ListInstanceIDs(ctx context.Context) ([]string, error) {
	ids := newIDSet()
	paginator := ec2.NewDescribeInstancesPaginator(l.client, &ec2.DescribeInstancesInput{
		MaxResults: aws.Int32(EC2MaxResults),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range output.Reservations {
			for _, i := range r.Instances {
				if i.InstanceId == nil || *i.InstanceId == "" {
					continue
				}
				ids.add(*i.InstanceId)
			}
		}
	}
	return ids.list, nil
}

type ManagedDatabaseLister struct {
	client RDSAPI
}

func NewManagedDatabaseLister(client RDSAPI) *ManagedDatabaseLister {
	return &ManagedDatabaseLister{client: client}
}

func (l *ManagedDatabaseLister) Kind() model.ServiceKind {
	return model.ManagedDatabase
}

func (l *ManagedDatabaseLister) ListInstanceIDs(ctx context.Context) ([]string, error) {
	ids := newIDSet()
	paginator := rds.NewDescribeDBInstancesPaginator(l.client, &rds.DescribeDBInstancesInput{
		MaxRecords: aws.Int32(RDSMaxRecords),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, db := range output.DBInstances {
			if db.DBInstanceIdentifier == nil || *db.DBInstanceIdentifier == "" {
				continue
			}
			ids.add(*db.DBInstanceIdentifier)
		}
	}
	return ids.list, nil
}

// idSet keeps the listing order and drops ids repeated across pages.
type idSet struct {
	seen map[string]struct{}
	list []string
}

func newIDSet() *idSet {
	return &idSet{
		seen: make(map[string]struct{}),
		list: make([]string, 0),
	}
}

func (s *idSet) add(id string) {
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.list = append(s.list, id)
}
