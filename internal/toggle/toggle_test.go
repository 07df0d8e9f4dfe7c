package toggle

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

type fakeSettings map[string]string

func (f fakeSettings) Setting(_ context.Context, name string) (string, bool, error) {
	v, ok := f[name]
	return v, ok, nil
}

func TestParseYAML_Flattens(t *testing.T) {
	fs, err := ParseYAML([]byte(`
message:
  enable: true
  userToUser:
    enable: false
  userToAdmin:
    enable: true
`))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	ctx := context.Background()
	if !fs.GetBool(ctx, MessageEnable, false) {
		t.Error("message.enable should be true")
	}
	if fs.GetBool(ctx, UserToUserEnable, true) {
		t.Error("message.userToUser.enable should be false")
	}
	if !fs.GetBool(ctx, "missing.key", true) {
		t.Error("Missing key should return the default")
	}
}

func TestParseYAML_RejectsNonBool(t *testing.T) {
	if _, err := ParseYAML([]byte("message:\n  enable: yes-please\n")); err == nil {
		t.Error("Non-bool leaf should be rejected")
	}
}

func TestDBStore_ParsesAndFallsBack(t *testing.T) {
	db := NewDBStore(fakeSettings{
		MessageEnable:    "false",
		UserToUserEnable: "garbage",
	}, log.New(io.Discard))
	ctx := context.Background()

	if db.GetBool(ctx, MessageEnable, true) {
		t.Error("Stored false should win over default")
	}
	if !db.GetBool(ctx, UserToUserEnable, true) {
		t.Error("Unparseable value should fall back to default")
	}
}

func TestChain_FirstKnownWins(t *testing.T) {
	file := NewStatic(map[string]bool{UserToUserEnable: false})
	db := NewDBStore(fakeSettings{UserToUserEnable: "true", MessageEnable: "false"}, log.New(io.Discard))
	chain := Chain{file, db}
	ctx := context.Background()

	if chain.GetBool(ctx, UserToUserEnable, true) {
		t.Error("File override should win")
	}
	if chain.GetBool(ctx, MessageEnable, true) {
		t.Error("Key unknown to the file should come from the DB")
	}
	if !chain.GetBool(ctx, UserToAdminEnable, true) {
		t.Error("Key unknown everywhere should use the default")
	}
}
