// Command adfscp copies files between the host and old style ADFS disc images.
//
//	adfscp copy in  games.adf '$.GAMES' ELITE     host file ELITE into $.GAMES
//	adfscp copy out games.adf '$.GAMES.ELITE' .   $.GAMES.ELITE into ./ELITE
//
// Copying out writes a NAME.inf sidecar next to the host file holding the
// load and execution addresses and attributes; copying in reads it back.
//
// Exit codes: 0 success, 1 usage error, 2 disc image could not be opened,
// 4 ADFS error, 5 host file error.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/soypat/adfs"
	"github.com/soypat/adfs/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const (
	exitUsage = 1
	exitImage = 2
	exitADFS  = 4
	exitHost  = 5
)

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// app holds what every subcommand needs. Tests swap the host file system.
type app struct {
	hostfs     afero.Fs
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	cfg        *config.Config
	log        *slog.Logger
}

func main() {
	a := &app{hostfs: afero.NewOsFs(), stdout: os.Stdout, stderr: os.Stderr}
	os.Exit(a.run(os.Args[1:]))
}

func (a *app) run(args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(a.stderr, "adfscp:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUsage
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "adfscp",
		Short:         "Copy files to and from Acorn ADFS disc images",
		Long:          "Copy files between the host and old map ADFS (S, M and L format) disc images",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.hostfs, a.configPath)
			if err != nil {
				return withCode(exitHost, err)
			}
			a.cfg = cfg
			a.log, err = cfg.Logger(a.stderr)
			return withCode(exitUsage, err)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "YAML config file")

	root.AddCommand(a.copyCmd(), a.catCmd(), a.mapCmd(), a.formatCmd(), a.mountCmd(), a.configCmd())
	return root
}

func (a *app) configCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config to the --config path",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if ok, _ := afero.Exists(a.hostfs, a.configPath); ok {
				return withCode(exitHost, fmt.Errorf("%s already exists", a.configPath))
			}
			return withCode(exitHost, config.Write(a.hostfs, a.configPath, config.Default()))
		},
	})
	return configCmd
}

// volume is an open disc image with a mounted FS.
type volume struct {
	file afero.File
	fsys *adfs.FS
}

func (v *volume) Close() error { return v.file.Close() }

// openVolume opens the disc image at path and mounts it.
func (a *app) openVolume(path string, mode adfs.Mode) (*volume, error) {
	flag := os.O_RDONLY
	if mode&adfs.ModeWrite != 0 {
		flag = os.O_RDWR
	}
	f, err := a.hostfs.OpenFile(path, flag, 0)
	if err != nil {
		return nil, withCode(exitImage, fmt.Errorf("unable to open ADFS disc %q: %w", path, err))
	}
	fsys := new(adfs.FS)
	fsys.SetLogger(a.log)
	err = fsys.Mount(adfs.NewImageBlocks(f), mode)
	if err != nil {
		f.Close()
		return nil, withCode(exitADFS, fmt.Errorf("mounting %q: %w", path, err))
	}
	return &volume{file: f, fsys: fsys}, nil
}
