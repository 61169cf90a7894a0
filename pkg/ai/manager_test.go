package ai

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// MockProvider is a mock implementation of Provider for testing
type MockProvider struct {
	name      string
	available bool
	shouldErr bool
}

func (m *MockProvider) GenerateQuery(ctx context.Context, req *QueryRequest) (string, error) {
	if m.shouldErr {
		return "", errors.New("mock error")
	}
	return "SELECT nom FROM clients", nil
}

func (m *MockProvider) SummarizeRows(ctx context.Context, req *SummarizeRowsRequest) (string, error) {
	if m.shouldErr {
		return "", errors.New("mock error")
	}
	return "Deux clients trouvés.", nil
}

func (m *MockProvider) IsAvailable() bool {
	return m.available
}

func (m *MockProvider) Name() string {
	return m.name
}

func TestManager_GetAvailableProvider(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name      string
		providers []Provider
		want      string
		wantNil   bool
	}{
		{
			name: "returns first available provider",
			providers: []Provider{
				&MockProvider{name: "provider1", available: true},
				&MockProvider{name: "provider2", available: true},
			},
			want: "provider1",
		},
		{
			name: "returns nil when no providers available",
			providers: []Provider{
				&MockProvider{name: "provider1", available: false},
			},
			wantNil: true,
		},
		{
			name: "skips unavailable providers",
			providers: []Provider{
				&MockProvider{name: "provider1", available: false},
				&MockProvider{name: "provider2", available: true},
			},
			want: "provider2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.providers, logger)
			got := m.GetAvailableProvider()

			if tt.wantNil {
				if got != nil {
					t.Errorf("Manager.GetAvailableProvider() = %v, want nil", got)
				}
			} else {
				if got == nil {
					t.Errorf("Manager.GetAvailableProvider() = nil, want %v", tt.want)
				} else if got.Name() != tt.want {
					t.Errorf("Manager.GetAvailableProvider() = %v, want %v", got.Name(), tt.want)
				}
			}
		})
	}
}

func TestManager_GenerateQuery_WithFallback(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name      string
		providers []Provider
		wantErr   bool
	}{
		{
			name: "succeeds with first provider",
			providers: []Provider{
				&MockProvider{name: "provider1", available: true},
				&MockProvider{name: "provider2", available: true},
			},
		},
		{
			name: "falls back to second provider when first fails",
			providers: []Provider{
				&MockProvider{name: "provider1", available: true, shouldErr: true},
				&MockProvider{name: "provider2", available: true},
			},
		},
		{
			name: "fails when all providers fail",
			providers: []Provider{
				&MockProvider{name: "provider1", available: true, shouldErr: true},
				&MockProvider{name: "provider2", available: true, shouldErr: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.providers, logger)
			query, err := m.GenerateQuery(context.Background(), &QueryRequest{Question: "liste des clients"})

			if tt.wantErr {
				if err == nil {
					t.Errorf("Manager.GenerateQuery() expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("Manager.GenerateQuery() error = %v, want nil", err)
				}
				if query == "" {
					t.Errorf("Manager.GenerateQuery() query = empty, want non-empty")
				}
			}
		})
	}
}

func TestManager_SummarizeRows_WithFallback(t *testing.T) {
	logger := zap.NewNop()
	m := NewManager([]Provider{
		&MockProvider{name: "provider1", available: true},
	}, logger)

	resp, err := m.SummarizeRows(context.Background(), &SummarizeRowsRequest{
		Question: "combien de clients ?",
		Query:    "SELECT nom FROM clients",
		Rows:     []map[string]interface{}{{"nom": "Atlas BTP"}},
	})
	if err != nil {
		t.Errorf("Manager.SummarizeRows() error = %v, want nil", err)
	}
	if resp == "" {
		t.Errorf("Manager.SummarizeRows() response = empty, want non-empty")
	}
}
