package doctor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/config"
	"github.com/rccstake/rccstake/internal/identity"
)

type staticChecker struct {
	name     string
	category Category
	status   Status
}

func (c staticChecker) Name() string       { return c.name }
func (c staticChecker) Category() Category { return c.category }
func (c staticChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Name: c.name, Category: c.category, Status: c.status, Message: c.name + ": " + string(c.status)}
}

type fakeProbe struct {
	connectErr error
	connected  bool
	code       []byte
	codeErr    error
}

func (p *fakeProbe) Connect(ctx context.Context) error {
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = true
	return nil
}
func (p *fakeProbe) IsConnected() bool { return p.connected }
func (p *fakeProbe) ChainID() *big.Int { return big.NewInt(11155111) }
func (p *fakeProbe) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return p.code, p.codeErr
}

type memStore struct{ password string }

func (s memStore) Name() string                { return "memory" }
func (s memStore) Store(password string) error { return nil }
func (s memStore) Retrieve() (string, error)   { return s.password, nil }
func (s memStore) Delete() error               { return nil }

func TestDoctorReport(t *testing.T) {
	var buf bytes.Buffer
	d := New(DoctorOptions{}, &buf, false)
	d.AddChecker(staticChecker{"a", CategoryConfig, StatusOK})
	d.AddChecker(staticChecker{"b", CategoryWallet, StatusWarning})
	d.AddChecker(staticChecker{"c", CategoryChain, StatusError})
	d.AddChecker(staticChecker{"d", CategoryStorage, StatusSkipped})

	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Doctor.Run() failed: %v", err)
	}

	want := Summary{Total: 4, Passed: 1, Failed: 1, Warned: 1, Skipped: 1}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
	if report.Summary.IsHealthy() {
		t.Error("report with a failed check should not be healthy")
	}

	out := buf.String()
	for _, s := range []string{"rccstake doctor", "[1/4] Checking a...", "✗ c: error", "1 failed", "1 warnings"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestDoctorJSONAndCategory(t *testing.T) {
	var buf bytes.Buffer
	d := New(DoctorOptions{JSON: true, Category: CategoryWallet}, &buf, true)
	d.AddChecker(staticChecker{"a", CategoryConfig, StatusOK})
	d.AddChecker(staticChecker{"b", CategoryWallet, StatusOK})

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Doctor.Run() failed: %v", err)
	}

	var report DoctorReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON output %q: %v", buf.String(), err)
	}
	if len(report.Checks) != 1 || report.Checks[0].Name != "b" {
		t.Errorf("expected only the wallet check, got %+v", report.Checks)
	}
	if !report.Summary.IsHealthy() {
		t.Error("expected healthy summary")
	}
}

func TestConfigChecker(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Contract.Address = ""

	if r := NewConfigChecker(cfg, false).Check(context.Background()); r.Status != StatusOK {
		t.Errorf("mock mode: expected ok, got %s (%s)", r.Status, r.Details)
	}

	r := NewConfigChecker(cfg, true).Check(context.Background())
	if r.Status != StatusError {
		t.Fatalf("live mode without contract: expected error, got %s", r.Status)
	}
	if !strings.Contains(r.Details, "contract.address") {
		t.Errorf("unexpected details: %s", r.Details)
	}
}

func TestWalletChecker_Empty(t *testing.T) {
	r := NewWalletChecker(t.TempDir()).Check(context.Background())
	if r.Status != StatusWarning {
		t.Fatalf("expected warning, got %s", r.Status)
	}
	if r.FixCommand != "rccstake wallet create" {
		t.Errorf("unexpected fix command: %s", r.FixCommand)
	}
}

func TestPasswordChecker(t *testing.T) {
	none := func() (string, error) { return "", nil }

	tests := []struct {
		name     string
		explicit func() (string, error)
		stores   []identity.PasswordStore
		status   Status
		message  string
	}{
		{"explicit", func() (string, error) { return "pw", nil }, nil, StatusOK, "From config"},
		{"store", none, []identity.PasswordStore{memStore{}, memStore{"pw"}}, StatusOK, "From memory"},
		{"missing", none, []identity.PasswordStore{memStore{}}, StatusWarning, "Not stored"},
		{"unreadable", func() (string, error) { return "", errors.New("permission denied") }, nil, StatusError, "unreadable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPasswordChecker(tt.explicit, tt.stores).Check(context.Background())
			if r.Status != tt.status {
				t.Errorf("status = %s, want %s", r.Status, tt.status)
			}
			if !strings.Contains(r.Message, tt.message) {
				t.Errorf("message %q does not contain %q", r.Message, tt.message)
			}
		})
	}
}

func TestChainCheckers(t *testing.T) {
	address := common.HexToAddress("0x5eed0000000000000000000000000000000000c0")
	ctx := context.Background()

	t.Run("mock", func(t *testing.T) {
		if r := NewRPCChecker(nil, "").Check(ctx); r.Status != StatusSkipped {
			t.Errorf("rpc: expected skipped, got %s", r.Status)
		}
		if r := NewContractChecker(nil, address).Check(ctx); r.Status != StatusSkipped {
			t.Errorf("contract: expected skipped, got %s", r.Status)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		probe := &fakeProbe{connectErr: errors.New("dial tcp: connection refused")}
		if r := NewRPCChecker(probe, "http://localhost:1").Check(ctx); r.Status != StatusError {
			t.Errorf("rpc: expected error, got %s", r.Status)
		}
		if r := NewContractChecker(probe, address).Check(ctx); r.Status != StatusSkipped {
			t.Errorf("contract: expected skipped without connection, got %s", r.Status)
		}
	})

	t.Run("no code", func(t *testing.T) {
		probe := &fakeProbe{}
		r := NewRPCChecker(probe, "http://localhost:8545").Check(ctx)
		if r.Status != StatusOK || !strings.Contains(r.Message, "11155111") {
			t.Errorf("rpc: unexpected result %+v", r)
		}
		if r := NewContractChecker(probe, address).Check(ctx); r.Status != StatusError {
			t.Errorf("contract: expected error for empty code, got %s", r.Status)
		}
	})

	t.Run("deployed", func(t *testing.T) {
		probe := &fakeProbe{connected: true, code: []byte{0x60, 0x80}}
		if r := NewContractChecker(probe, address).Check(ctx); r.Status != StatusOK {
			t.Errorf("contract: expected ok, got %s", r.Status)
		}
	})
}

func TestJournalChecker(t *testing.T) {
	ctx := context.Background()

	disabled := NewJournalChecker(config.JournalConfig{Enabled: false}).Check(ctx)
	if disabled.Status != StatusSkipped {
		t.Errorf("expected skipped, got %s", disabled.Status)
	}

	path := filepath.Join(t.TempDir(), "journal")
	r := NewJournalChecker(config.JournalConfig{Enabled: true, Path: path}).Check(ctx)
	if r.Status != StatusOK {
		t.Errorf("expected ok, got %s (%s)", r.Status, r.Details)
	}
}
