package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepforge/flowrt/core"
)

func delayed(d time.Duration, value interface{}, err error) Branch {
	return func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(d):
			return value, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestAllReturnsResultsInInputOrder(t *testing.T) {
	branches := []Branch{
		delayed(30*time.Millisecond, "slow", nil),
		delayed(5*time.Millisecond, "fast", nil),
	}
	results, err := All(context.Background(), branches, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"slow", "fast"}, results)
}

func TestAllCancelsRemainingBranchesOnFailure(t *testing.T) {
	canceled := make(chan struct{}, 1)
	branches := []Branch{
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("boom") },
		func(ctx context.Context) (interface{}, error) {
			<-ctx.Done()
			canceled <- struct{}{}
			return nil, ctx.Err()
		},
	}
	_, err := All(context.Background(), branches, nil)
	require.Error(t, err)
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("sibling branch was never cancelled")
	}
}

func TestAllRunsValidatorAgainstFullResultVector(t *testing.T) {
	branches := []Branch{
		func(ctx context.Context) (interface{}, error) { return 1, nil },
		func(ctx context.Context) (interface{}, error) { return 2, nil },
	}
	_, err := All(context.Background(), branches, func(results []interface{}) (bool, error) {
		return false, nil
	})
	var validationErr *core.ParallelValidationFailed
	require.ErrorAs(t, err, &validationErr)
}

func TestAnyReturnsFirstSuccessAndCancelsRest(t *testing.T) {
	canceled := make(chan struct{}, 1)
	branches := []Branch{
		func(ctx context.Context) (interface{}, error) {
			select {
			case <-time.After(50 * time.Millisecond):
				return "slow", nil
			case <-ctx.Done():
				canceled <- struct{}{}
				return nil, ctx.Err()
			}
		},
		delayed(2*time.Millisecond, "fast", nil),
	}
	value, err := Any(context.Background(), branches)
	require.NoError(t, err)
	assert.Equal(t, "fast", value)
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("losing branch was never cancelled")
	}
}

func TestAnyReturnsLastFailureWhenAllFail(t *testing.T) {
	last := errors.New("last failure")
	branches := []Branch{
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("first failure") },
		func(ctx context.Context) (interface{}, error) { return nil, last },
	}
	_, err := Any(context.Background(), branches)
	require.Error(t, err)
}

func TestRaceDelegatesToAny(t *testing.T) {
	branches := []Branch{
		delayed(1*time.Millisecond, "winner", nil),
	}
	value, err := Race(context.Background(), branches)
	require.NoError(t, err)
	assert.Equal(t, "winner", value)
}

func TestNReturnsFirstNSuccesses(t *testing.T) {
	branches := []Branch{
		delayed(1*time.Millisecond, "a", nil),
		delayed(2*time.Millisecond, "b", nil),
		delayed(50*time.Millisecond, "c", nil),
	}
	results, err := N(context.Background(), branches, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestNFailsWithFewerSuccessesThanRequired(t *testing.T) {
	branches := []Branch{
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("fail") },
		func(ctx context.Context) (interface{}, error) { return "ok", nil },
	}
	_, err := N(context.Background(), branches, 2)
	assert.Error(t, err)
}

func TestCollectNeverPropagatesIndividualErrors(t *testing.T) {
	branches := []Branch{
		func(ctx context.Context) (interface{}, error) { return "ok", nil },
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("fail") },
	}
	results := Collect(context.Background(), branches)
	require.Len(t, results, 2)
	assert.Equal(t, "ok", results[0].Value)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
}
