// Command adfs-mcp serves an ADFS disc image to MCP clients over stdio. It
// offers tools to catalogue directories, read and write files and summarize
// free space. Writes are refused unless mcp.read_only is false in the config.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/soypat/adfs"
	"github.com/soypat/adfs/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// disc opens the configured image for each tool call. Calls are serialized
// so no two FS are ever mounted on the image at once.
type disc struct {
	mu       sync.Mutex
	hostfs   afero.Fs
	image    string
	readOnly bool
	defaults config.Config
	log      *slog.Logger
}

// with mounts the image and calls fn with the volume.
func (d *disc) with(mode adfs.Mode, fn func(fsys *adfs.FS) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	flag := os.O_RDONLY
	if mode&adfs.ModeWrite != 0 {
		flag = os.O_RDWR
	}
	f, err := d.hostfs.OpenFile(d.image, flag, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	var fsys adfs.FS
	fsys.SetLogger(d.log)
	if err := fsys.Mount(adfs.NewImageBlocks(f), mode); err != nil {
		return err
	}
	return fn(&fsys)
}

func addTools(s *server.MCPServer, d *disc) {
	catTool := mcp.NewTool("adfs_catalogue",
		mcp.WithDescription("List the entries of an ADFS directory with attributes, addresses, length and start sector"),
		mcp.WithString("path",
			mcp.Description("Dotted ADFS directory path such as $.GAMES. Defaults to the root $"),
		),
	)
	s.AddTool(catTool, d.handleCatalogue)

	readTool := mcp.NewTool("adfs_read",
		mcp.WithDescription("Read an ADFS file. Text files are returned as is, binary files as hex"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Dotted ADFS file path such as $.GAMES.README"),
		),
	)
	s.AddTool(readTool, d.handleRead)

	writeTool := mcp.NewTool("adfs_write",
		mcp.WithDescription("Create or replace an ADFS file with text content"),
		mcp.WithString("dir",
			mcp.Required(),
			mcp.Description("Dotted ADFS path of the destination directory"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("File name, at most 10 characters"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("File content"),
		),
		mcp.WithString("load_addr",
			mcp.Description("Load address in hex. Defaults to the configured default"),
		),
		mcp.WithString("exec_addr",
			mcp.Description("Execution address in hex. Defaults to the configured default"),
		),
	)
	s.AddTool(writeTool, d.handleWrite)

	statTool := mcp.NewTool("adfs_stat",
		mcp.WithDescription("Summarize the disc's free space map"),
	)
	s.AddTool(statTool, d.handleStat)
}

func (d *disc) handleCatalogue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, _ := request.RequireString("path")
	if path == "" {
		path = "$"
	}
	var b strings.Builder
	err := d.with(adfs.ModeRead, func(fsys *adfs.FS) error {
		info, err := fsys.DirInfo(path)
		if err != nil {
			return err
		}
		objs, err := fsys.ReadDir(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "Directory %s title %q, %d of %d entries:\n", info.Name, info.Title, info.Entries, info.Capacity)
		for _, obj := range objs {
			fmt.Fprintf(&b, "- %s %s load=%08X exec=%08X length=%d sector=%d\n",
				obj.Name, obj.Attr, obj.LoadAddr, obj.ExecAddr, obj.Length, obj.Sector)
		}
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to catalogue %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (d *disc) handleRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var obj adfs.Object
	err = d.with(adfs.ModeRead, func(fsys *adfs.FS) error {
		obj, err = fsys.Find(path)
		if err != nil {
			return err
		} else if obj.Attr.IsDir() {
			return adfs.ErrIsDirectory
		}
		return fsys.Load(&obj)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read %s: %v", path, err)), nil
	}
	if isText(obj.Data) {
		// BBC text files end lines with CR.
		return mcp.NewToolResultText(strings.ReplaceAll(string(obj.Data), "\r", "\n")), nil
	}
	return mcp.NewToolResultText(hex.Dump(obj.Data)), nil
}

func (d *disc) handleWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if d.readOnly {
		return mcp.NewToolResultError("Disc is read only, set mcp.read_only to false to allow writes"), nil
	}
	var args [3]string
	for i, key := range []string{"dir", "name", "content"} {
		v, err := request.RequireString(key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args[i] = v
	}
	def, err := d.defaults.HostDefaults()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	obj := adfs.Object{
		Name:     args[1],
		Attr:     def.Attr,
		LoadAddr: def.LoadAddr,
		ExecAddr: def.ExecAddr,
		Data:     []byte(strings.ReplaceAll(args[2], "\n", "\r")),
	}
	for key, dst := range map[string]*uint32{"load_addr": &obj.LoadAddr, "exec_addr": &obj.ExecAddr} {
		s, _ := request.RequireString(key)
		if s == "" {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(s, "&"), "0x"), 16, 32)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Bad %s %q: %v", key, s, err)), nil
		}
		*dst = uint32(v)
	}
	err = d.with(adfs.ModeRW, func(fsys *adfs.FS) error {
		return fsys.Save(&obj, args[0])
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to write %s.%s: %v", args[0], args[1], err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Wrote %d bytes to %s.%s at sector %d", obj.Length, args[0], obj.Name, obj.Sector)), nil
}

func (d *disc) handleStat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var st adfs.VolumeStat
	err := d.with(adfs.ModeRead, func(fsys *adfs.FS) (err error) {
		st, err = fsys.Stat()
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read free space map: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Total sectors: %d\nFree sectors: %d in %d extents, largest %d\nDisc id: %04X\nBoot option: %d\n",
		st.TotalSectors, st.FreeSectors, st.FreeExtents, st.LargestFree, st.DiscID, st.BootOption)), nil
}

func isText(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, c := range data {
		if c < ' ' && c != '\r' && c != '\n' && c != '\t' {
			return false
		}
	}
	return true
}

func main() {
	var configPath, image string
	root := &cobra.Command{
		Use:   "adfs-mcp",
		Short: "Serve an ADFS disc image to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			hostfs := afero.NewOsFs()
			cfg, err := config.Load(hostfs, configPath)
			if err != nil {
				return err
			}
			if image != "" {
				cfg.MCP.Image = image
			}
			if cfg.MCP.Image == "" {
				return fmt.Errorf("no disc image: set mcp.image in %s or pass --image", configPath)
			}
			// Stdout carries the protocol.
			log, err := cfg.Logger(os.Stderr)
			if err != nil {
				return err
			}
			d := &disc{
				hostfs:   hostfs,
				image:    cfg.MCP.Image,
				readOnly: cfg.MCP.ReadOnly,
				defaults: *cfg,
				log:      log,
			}
			s := server.NewMCPServer(
				"adfs",
				"1.0.0",
				server.WithToolCapabilities(false),
			)
			addTools(s, d)
			log.Info("serving", slog.String("image", d.image), slog.Bool("read_only", d.readOnly))
			return server.ServeStdio(s)
		},
	}
	root.Flags().StringVar(&configPath, "config", config.DefaultPath, "YAML config file")
	root.Flags().StringVar(&image, "image", "", "disc image, overrides mcp.image")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
