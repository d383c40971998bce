package kiosk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

// Remote export commands understood by the kiosk server, in the order they
// must run.
var exportCommands = []string{
	"export-cash-out",
	"export-cash-in",
	"export-out-actions",
}

// Exported file names and where the kiosk writes them.
var exportFiles = map[string]string{
	FileCashOut:    "/tmp/cash_out_txs.csv",
	FileCashIn:     "/tmp/cash_in_txs.csv",
	FileOutActions: "/tmp/cash_out_actions.csv",
}

type FetcherConfig struct {
	Host       string
	User       string
	KeyFile    string
	Password   string
	LogDir     string
	ArchiveDir string
	Timeout    time.Duration
}

// Fetcher pulls fresh CSV exports from the kiosk server over SSH. It touches
// the local filesystem only; nothing is recorded in the ledger until the
// downloaded files parse and allocate successfully.
type Fetcher struct {
	cfg FetcherConfig
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	return &Fetcher{cfg: cfg}
}

// Fetch archives the previous exports, regenerates them on the kiosk, and
// downloads the fresh copies. The whole fetch aborts on the first failure;
// the external scheduler retries on the next cycle.
func (f *Fetcher) Fetch(ctx context.Context) error {
	if err := os.MkdirAll(f.cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if err := os.MkdirAll(f.cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	if err := f.ArchiveExisting(time.Now()); err != nil {
		return err
	}

	client, err := f.dial()
	if err != nil {
		return &RemoteCommandError{Command: "ssh dial", Err: err}
	}
	defer client.Close()

	// Export generation is sequential; the kiosk expects ordered commands.
	for _, cmd := range exportCommands {
		if err := f.runCommand(ctx, client, cmd); err != nil {
			return err
		}
		log.Info().Str("command", cmd).Msg("remote export generated")
	}

	// The three downloads are independent.
	g, ctx := errgroup.WithContext(ctx)
	for local, remote := range exportFiles {
		local, remote := local, remote
		g.Go(func() error {
			return f.download(ctx, client, remote, filepath.Join(f.cfg.LogDir, local))
		})
	}

	return g.Wait()
}

// ArchiveExisting moves the current export files into the archive directory
// with a timestamp suffix. A missing file is logged and skipped.
func (f *Fetcher) ArchiveExisting(now time.Time) error {
	suffix := now.Format("2006-01-02T15:04:05")

	for _, name := range []string{FileCashOut, FileCashIn, FileOutActions} {
		src := filepath.Join(f.cfg.LogDir, name)

		if _, err := os.Stat(src); os.IsNotExist(err) {
			log.Info().Str("file", name).Msg("no previous export to archive")
			continue
		}

		base := name[:len(name)-len(path.Ext(name))]
		dst := filepath.Join(f.cfg.ArchiveDir, fmt.Sprintf("%s_%s.csv", base, suffix))

		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
		log.Info().Str("file", name).Str("archived_as", dst).Msg("archived export")
	}

	return nil
}

func (f *Fetcher) dial() (*ssh.Client, error) {
	var auth []ssh.AuthMethod

	if f.cfg.KeyFile != "" {
		key, err := os.ReadFile(f.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if f.cfg.Password != "" {
		auth = append(auth, ssh.Password(f.cfg.Password))
	}

	sshConfig := &ssh.ClientConfig{
		User:            f.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         f.cfg.Timeout,
	}

	return ssh.Dial("tcp", f.cfg.Host+":22", sshConfig)
}

func (f *Fetcher) runCommand(ctx context.Context, client *ssh.Client, cmd string) error {
	session, err := client.NewSession()
	if err != nil {
		return &RemoteCommandError{Command: cmd, Err: err}
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		if err != nil {
			done <- &RemoteCommandError{Command: cmd, Output: string(out), Err: err}
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return &RemoteCommandError{Command: cmd, Err: ctx.Err()}
	case err := <-done:
		return err
	}
}

func (f *Fetcher) download(ctx context.Context, client *ssh.Client, remotePath, localPath string) error {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &TransferError{Path: remotePath, Err: err}
	}
	defer sftpClient.Close()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- copyRemote(sftpClient, remotePath, localPath)
	}()

	select {
	case <-ctx.Done():
		return &TransferError{Path: remotePath, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return &TransferError{Path: remotePath, Err: err}
		}
		log.Info().Str("remote", remotePath).Str("local", localPath).Msg("downloaded export")
		return nil
	}
}

func copyRemote(client *sftp.Client, remotePath, localPath string) error {
	src, err := client.Open(remotePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}
