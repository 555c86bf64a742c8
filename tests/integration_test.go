package tests

import (
	"context"
	"database/sql"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/fenilsonani/email-server/internal/auth"
	"github.com/fenilsonani/email-server/internal/config"
	imapServer "github.com/fenilsonani/email-server/internal/imap"
	"github.com/fenilsonani/email-server/internal/storage/maildir"
	_ "github.com/mattn/go-sqlite3"
)

// testEnv holds all components needed for integration tests
type testEnv struct {
	db           *sql.DB
	cfg          *config.Config
	auth         *auth.Authenticator
	store        *maildir.Store
	imapSrv      *imapServer.Server
	tmpDir       string
	imapListener net.Listener
}

func setupIntegrationEnv(t *testing.T) (*testEnv, func()) {
	tmpDir, err := os.MkdirTemp("", "integration_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := tmpDir + "/test.db"
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	schema := `
		CREATE TABLE domains (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			dkim_selector TEXT NOT NULL DEFAULT 'mail',
			is_active BOOLEAN DEFAULT TRUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			domain_id INTEGER NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT,
			quota_bytes INTEGER DEFAULT 1073741824,
			used_bytes INTEGER DEFAULT 0,
			is_active BOOLEAN DEFAULT TRUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(domain_id, username)
		);

		CREATE TABLE aliases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			domain_id INTEGER NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
			source_address TEXT NOT NULL,
			destination_user_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
			destination_external TEXT,
			is_active BOOLEAN DEFAULT TRUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(domain_id, source_address)
		);

		CREATE TABLE mailboxes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			uidvalidity INTEGER NOT NULL,
			uidnext INTEGER NOT NULL DEFAULT 1,
			subscribed BOOLEAN DEFAULT TRUE,
			special_use TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, name)
		);

		CREATE TABLE messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mailbox_id INTEGER NOT NULL REFERENCES mailboxes(id) ON DELETE CASCADE,
			uid INTEGER NOT NULL,
			maildir_key TEXT NOT NULL,
			size INTEGER NOT NULL,
			internal_date DATETIME NOT NULL,
			flags TEXT DEFAULT '',
			message_id TEXT,
			subject TEXT,
			from_address TEXT,
			to_addresses TEXT,
			in_reply_to TEXT,
			references_header TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(mailbox_id, uid)
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create schema: %v", err)
	}

	_, err = db.Exec("INSERT INTO domains (name) VALUES (?)", "test.local")
	if err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create domain: %v", err)
	}

	authenticator := auth.NewAuthenticator(db)

	password := "testpass123"
	hash, _ := auth.HashPassword(password)
	result, err := db.Exec(
		"INSERT INTO users (domain_id, username, password_hash, display_name) VALUES (1, ?, ?, ?)",
		"testuser", hash, "Test User",
	)
	if err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create user: %v", err)
	}
	userID, _ := result.LastInsertId()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Hostname:       "mail.test.local",
			SMTPPort:       25,
			SubmissionPort: 587,
			IMAPPort:       143,
			IMAPSPort:      993,
		},
		Storage: config.StorageConfig{
			DataDir:      tmpDir,
			DatabasePath: dbPath,
			MaildirPath:  tmpDir + "/maildir",
		},
		Domains: []config.DomainConfig{
			{Name: "test.local", DKIMSelector: "mail"},
		},
		Security: config.SecurityConfig{
			RequireTLS:     false,
			MaxMessageSize: 26214400,
		},
	}

	maildirPath := cfg.Storage.MaildirPath
	store, err := maildir.NewStore(db, maildirPath)
	if err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	_, err = store.CreateMailbox(ctx, userID, "INBOX", "")
	if err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create INBOX: %v", err)
	}

	imapSrv := imapServer.NewServer(authenticator, store, "127.0.0.1:0", "", nil)
	if err := imapSrv.ListenAndServe(); err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to start IMAP server: %v", err)
	}

	env := &testEnv{
		db:      db,
		cfg:     cfg,
		auth:    authenticator,
		store:   store,
		imapSrv: imapSrv,
		tmpDir:  tmpDir,
	}

	cleanup := func() {
		imapSrv.Close()
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return env, cleanup
}

// dialIMAP connects a plaintext go-imap v2 client to env's running server.
func dialIMAP(t *testing.T, env *testEnv) *imapclient.Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", env.imapSrv.Addr(), 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect to IMAP server: %v", err)
	}

	client := imapclient.New(conn, nil)
	if err := client.WaitGreeting(); err != nil {
		client.Close()
		t.Fatalf("Failed to receive greeting: %v", err)
	}
	return client
}

func TestIntegration_AuthenticateIMAPUser(t *testing.T) {
	env, cleanup := setupIntegrationEnv(t)
	defer cleanup()

	client := dialIMAP(t, env)
	defer client.Close()

	if err := client.Login("testuser@test.local", "testpass123").Wait(); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	listCmd := client.List("", "*", nil)
	mailboxes, err := listCmd.Collect()
	if err != nil {
		t.Fatalf("List mailboxes failed: %v", err)
	}

	found := false
	for _, mb := range mailboxes {
		if mb.Mailbox == "INBOX" {
			found = true
		}
	}
	if !found {
		t.Error("Expected to find INBOX")
	}

	if err := client.Logout().Wait(); err != nil {
		t.Errorf("Logout failed: %v", err)
	}
}

func TestIntegration_AuthenticateIMAPWrongPassword(t *testing.T) {
	env, cleanup := setupIntegrationEnv(t)
	defer cleanup()

	client := dialIMAP(t, env)
	defer client.Close()

	if err := client.Login("testuser@test.local", "wrongpassword").Wait(); err == nil {
		t.Error("Login should have failed with wrong password")
	}
}

func TestIntegration_EndToEndFlow(t *testing.T) {
	env, cleanup := setupIntegrationEnv(t)
	defer cleanup()

	client := dialIMAP(t, env)
	defer client.Close()

	if err := client.Login("testuser@test.local", "testpass123").Wait(); err != nil {
		t.Fatalf("IMAP login failed: %v", err)
	}

	msgContent := "From: sender@example.com\r\nTo: testuser@test.local\r\nSubject: Integration Test\r\n\r\nThis is an integration test message."
	appendCmd := client.Append("INBOX", int64(len(msgContent)), nil)
	if _, err := appendCmd.Write([]byte(msgContent)); err != nil {
		t.Fatalf("Failed to write append data: %v", err)
	}
	if err := appendCmd.Close(); err != nil {
		t.Fatalf("Failed to close append command: %v", err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	mbox, err := client.Select("INBOX", nil).Wait()
	if err != nil {
		t.Fatalf("Select INBOX failed: %v", err)
	}
	if mbox.NumMessages != 1 {
		t.Fatalf("Expected 1 message in INBOX, got %d", mbox.NumMessages)
	}

	fetchOptions := &imap.FetchOptions{Envelope: true, Flags: true}
	seqSet := imap.SeqSetNum(1)
	fetchCmd := client.Fetch(seqSet, fetchOptions)
	messages, err := fetchCmd.Collect()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 fetched message, got %d", len(messages))
	}

	client.Logout().Wait()
}

func TestIntegration_MultipleUsers(t *testing.T) {
	env, cleanup := setupIntegrationEnv(t)
	defer cleanup()

	ctx := context.Background()

	password := "pass456"
	hash, _ := auth.HashPassword(password)
	result, err := env.db.Exec(
		"INSERT INTO users (domain_id, username, password_hash) VALUES (1, ?, ?)",
		"user2", hash,
	)
	if err != nil {
		t.Fatalf("Failed to create user2: %v", err)
	}
	user2ID, _ := result.LastInsertId()

	if _, err := env.store.CreateMailbox(ctx, user2ID, "INBOX", ""); err != nil {
		t.Fatalf("Failed to create INBOX for user2: %v", err)
	}

	mb1, _ := env.store.GetMailbox(ctx, 1, "INBOX")
	env.store.AppendMessage(ctx, mb1.ID, nil, time.Now(), strings.NewReader("Message for user1"))

	mb2, _ := env.store.GetMailbox(ctx, user2ID, "INBOX")
	env.store.AppendMessage(ctx, mb2.ID, nil, time.Now(), strings.NewReader("Message for user2"))

	c1 := dialIMAP(t, env)
	defer c1.Close()
	c1.Login("testuser@test.local", "testpass123").Wait()
	mbox1, err := c1.Select("INBOX", nil).Wait()
	if err != nil {
		t.Fatalf("user1 select failed: %v", err)
	}
	if mbox1.NumMessages != 1 {
		t.Errorf("User1 expected 1 message, got %d", mbox1.NumMessages)
	}
	c1.Logout().Wait()

	c2 := dialIMAP(t, env)
	defer c2.Close()
	c2.Login("user2@test.local", "pass456").Wait()
	mbox2, err := c2.Select("INBOX", nil).Wait()
	if err != nil {
		t.Fatalf("user2 select failed: %v", err)
	}
	if mbox2.NumMessages != 1 {
		t.Errorf("User2 expected 1 message, got %d", mbox2.NumMessages)
	}
	c2.Logout().Wait()
}

func TestIntegration_MailboxOperations(t *testing.T) {
	env, cleanup := setupIntegrationEnv(t)
	defer cleanup()

	client := dialIMAP(t, env)
	defer client.Close()

	client.Login("testuser@test.local", "testpass123").Wait()

	if err := client.Create("Archive", nil).Wait(); err != nil {
		t.Fatalf("Create mailbox failed: %v", err)
	}

	listCmd := client.List("", "*", nil)
	mailboxes, err := listCmd.Collect()
	if err != nil {
		t.Fatalf("List mailboxes failed: %v", err)
	}
	foundArchive := false
	for _, mb := range mailboxes {
		if mb.Mailbox == "Archive" {
			foundArchive = true
		}
	}
	if !foundArchive {
		t.Error("Expected to find Archive mailbox")
	}

	if err := client.Rename("Archive", "OldMail", nil).Wait(); err != nil {
		t.Fatalf("Rename mailbox failed: %v", err)
	}

	if err := client.Delete("OldMail").Wait(); err != nil {
		t.Fatalf("Delete mailbox failed: %v", err)
	}

	client.Logout().Wait()
}

// TestIntegration_CopyRejectsSelfAndMissingDestination exercises the
// mailsync-backed COPY response codes: CANNOT for copying into the
// currently selected mailbox, TRYCREATE for a destination that does
// not exist.
func TestIntegration_CopyRejectsSelfAndMissingDestination(t *testing.T) {
	env, cleanup := setupIntegrationEnv(t)
	defer cleanup()

	client := dialIMAP(t, env)
	defer client.Close()

	client.Login("testuser@test.local", "testpass123").Wait()

	msgContent := "From: a@test.local\r\nTo: testuser@test.local\r\nSubject: Copy test\r\n\r\nbody"
	appendCmd := client.Append("INBOX", int64(len(msgContent)), nil)
	appendCmd.Write([]byte(msgContent))
	appendCmd.Close()
	if _, err := appendCmd.Wait(); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		t.Fatalf("Select INBOX failed: %v", err)
	}

	seqSet := imap.SeqSetNum(1)

	if _, err := client.Copy(seqSet, "INBOX").Wait(); err == nil {
		t.Error("Expected COPY to self to fail")
	}

	if _, err := client.Copy(seqSet, "DoesNotExist").Wait(); err == nil {
		t.Error("Expected COPY to a missing mailbox to fail")
	}

	if err := client.Create("Archive", nil).Wait(); err != nil {
		t.Fatalf("Create Archive failed: %v", err)
	}

	if _, err := client.Copy(seqSet, "Archive").Wait(); err != nil {
		t.Fatalf("Expected COPY to a real mailbox to succeed: %v", err)
	}

	client.Logout().Wait()
}
