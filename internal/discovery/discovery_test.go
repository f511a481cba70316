package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEC2API serves pages keyed by the incoming NextToken.
type mockEC2API struct {
	pages  map[string]*ec2.DescribeInstancesOutput
	err    error
	inputs []*ec2.DescribeInstancesInput
}

func (m *mockEC2API) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.pages[aws.ToString(params.NextToken)], nil
}

type mockRDSAPI struct {
	pages  map[string]*rds.DescribeDBInstancesOutput
	err    error
	inputs []*rds.DescribeDBInstancesInput
}

func (m *mockRDSAPI) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.pages[aws.ToString(params.Marker)], nil
}

func reservation(ids ...*string) ec2types.Reservation {
	r := ec2types.Reservation{}
	for _, id := range ids {
		r.Instances = append(r.Instances, ec2types.Instance{InstanceId: id})
	}
	return r
}

func TestResolveInstanceIDs_Explicit(t *testing.T) {
	client := &mockEC2API{}
	explicit := []string{"i-3", "i-1", "i-3"}
	ids, err := ResolveInstanceIDs(context.Background(), explicit, NewComputeLister(client))
	require.NoError(t, err)
	assert.Equal(t, explicit, ids)
	assert.Empty(t, client.inputs, "listing must not be called for explicit ids")
}

func TestResolveInstanceIDs_Compute(t *testing.T) {
	client := &mockEC2API{
		pages: map[string]*ec2.DescribeInstancesOutput{
			"": {
				Reservations: []ec2types.Reservation{
					reservation(aws.String("i-1"), nil, aws.String("i-2")),
					reservation(aws.String("")),
				},
				NextToken: aws.String("page2"),
			},
			"page2": {
				Reservations: []ec2types.Reservation{
					reservation(aws.String("i-3"), aws.String("i-1")),
				},
			},
		},
	}
	ids, err := ResolveInstanceIDs(context.Background(), nil, NewComputeLister(client))
	require.NoError(t, err)
	assert.Equal(t, []string{"i-1", "i-2", "i-3"}, ids)
	require.Len(t, client.inputs, 2)
	assert.Equal(t, int32(EC2MaxResults), aws.ToInt32(client.inputs[0].MaxResults))
}

func TestResolveInstanceIDs_ManagedDatabase(t *testing.T) {
	client := &mockRDSAPI{
		pages: map[string]*rds.DescribeDBInstancesOutput{
			"": {
				DBInstances: []rdstypes.DBInstance{
					{DBInstanceIdentifier: aws.String("db-a")},
					{},
					{DBInstanceIdentifier: aws.String("db-b")},
				},
			},
		},
	}
	ids, err := ResolveInstanceIDs(context.Background(), []string{}, NewManagedDatabaseLister(client))
	require.NoError(t, err)
	assert.Equal(t, []string{"db-a", "db-b"}, ids)
	require.Len(t, client.inputs, 1)
	assert.Equal(t, int32(RDSMaxRecords), aws.ToInt32(client.inputs[0].MaxRecords))
}

func TestResolveInstanceIDs_Empty(t *testing.T) {
	client := &mockEC2API{
		pages: map[string]*ec2.DescribeInstancesOutput{
			"": {},
		},
	}
	ids, err := ResolveInstanceIDs(context.Background(), nil, NewComputeLister(client))
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestResolveInstanceIDs_Error(t *testing.T) {
	backendErr := errors.New("UnauthorizedOperation")
	_, err := ResolveInstanceIDs(context.Background(), nil, NewManagedDatabaseLister(&mockRDSAPI{err: backendErr}))
	assert.ErrorIs(t, err, backendErr)
}
