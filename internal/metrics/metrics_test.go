// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func histogramSnapshot(t *testing.T) (count uint64, sum float64) {
	t.Helper()
	var m dto.Metric
	if err := BackupArchiveSize.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestRecordBackupOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		err        error
		wantResult string
	}{
		{name: "successful create", operation: "create", wantResult: ResultSuccess},
		{name: "failed restore", operation: "restore", err: errors.New("decrypt failed"), wantResult: ResultFailure},
		{name: "successful delete", operation: "delete", wantResult: ResultSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := BackupOperations.WithLabelValues(tt.operation, tt.wantResult)
			before := testutil.ToFloat64(counter)

			RecordBackupOperation(tt.operation, 250*time.Millisecond, tt.err)

			if got := testutil.ToFloat64(counter); got != before+1 {
				t.Errorf("backup_operations_total{%s,%s} = %v, want %v", tt.operation, tt.wantResult, got, before+1)
			}
		})
	}
}

func TestRecordBackupCreated(t *testing.T) {
	at := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)
	beforeCount, beforeSum := histogramSnapshot(t)
	RecordBackupCreated(1024*1024, at)

	afterCount, afterSum := histogramSnapshot(t)
	if afterCount < beforeCount+1 {
		t.Errorf("backup_archive_size_bytes count = %d, want at least %d", afterCount, beforeCount+1)
	}
	if afterSum-beforeSum < 1024*1024 {
		t.Errorf("backup_archive_size_bytes sum grew by %v, want at least 1MiB", afterSum-beforeSum)
	}

	if got := testutil.ToFloat64(BackupLastSuccess); got != float64(at.Unix()) {
		t.Errorf("backup_last_success_timestamp = %v, want %v", got, float64(at.Unix()))
	}
}

func TestSetCatalogRecords(t *testing.T) {
	SetCatalogRecords(7)
	if got := testutil.ToFloat64(BackupCatalogRecords); got != 7 {
		t.Errorf("backup_catalog_records = %v, want 7", got)
	}
}

func TestRecordRetentionDeletion(t *testing.T) {
	excess := RetentionDeleted.WithLabelValues("excess")
	expired := RetentionDeleted.WithLabelValues("expired")
	beforeExcess := testutil.ToFloat64(excess)
	beforeExpired := testutil.ToFloat64(expired)

	RecordRetentionDeletion([]string{"excess", "expired"})

	if got := testutil.ToFloat64(excess); got != beforeExcess+1 {
		t.Errorf("excess = %v, want %v", got, beforeExcess+1)
	}
	if got := testutil.ToFloat64(expired); got != beforeExpired+1 {
		t.Errorf("expired = %v, want %v", got, beforeExpired+1)
	}
}

func TestRecordRemoteRequest(t *testing.T) {
	tests := []struct {
		provider  string
		operation string
		result    string
	}{
		{"s3", "upload", ResultSuccess},
		{"s3", "download", ResultFailure},
		{"gdrive", "upload", ResultRejected},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"_"+tt.operation+"_"+tt.result, func(t *testing.T) {
			counter := RemoteRequests.WithLabelValues(tt.provider, tt.operation, tt.result)
			before := testutil.ToFloat64(counter)

			RecordRemoteRequest(tt.provider, tt.operation, tt.result, time.Second)

			if got := testutil.ToFloat64(counter); got != before+1 {
				t.Errorf("backup_remote_requests_total = %v, want %v", got, before+1)
			}
		})
	}
}

func TestSetRemoteCircuitState(t *testing.T) {
	transitions := RemoteCircuitTransitions.WithLabelValues("test-provider", "closed", "open")
	before := testutil.ToFloat64(transitions)

	SetRemoteCircuitState("test-provider", "closed", "open", 2)

	if got := testutil.ToFloat64(RemoteCircuitState.WithLabelValues("test-provider")); got != 2 {
		t.Errorf("backup_remote_circuit_state = %v, want 2", got)
	}
	if got := testutil.ToFloat64(transitions); got != before+1 {
		t.Errorf("transitions = %v, want %v", got, before+1)
	}

	// Initial state has no transition
	SetRemoteCircuitState("test-provider", "", "closed", 0)
	if got := testutil.ToFloat64(transitions); got != before+1 {
		t.Errorf("transitions changed on initial state: %v", got)
	}
}

func TestConcurrentRecording(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordBackupOperation("validate", time.Millisecond, nil)
			RecordRemoteRequest("s3", "list", ResultSuccess, time.Millisecond)
		}()
	}
	wg.Wait()
}
