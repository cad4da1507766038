package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/soypat/adfs"
	"github.com/soypat/adfs/internal/adfsfuse"
	"github.com/soypat/adfs/internal/hostfile"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func (a *app) copyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <in|out> <disc-image> <adfs-path> <host-path>",
		Short: "Copy a file into or out of a disc image",
		Long: "copy in saves the host file into the ADFS directory adfs-path.\n" +
			"copy out loads the ADFS file adfs-path into host-path, which may be a directory.",
		Args: cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			switch strings.ToLower(args[0]) {
			case "in":
				return a.copyIn(args[1], args[2], args[3])
			case "out":
				return a.copyOut(args[1], args[2], args[3])
			}
			return fmt.Errorf("direction must be in or out, got %q", args[0])
		},
	}
}

func (a *app) copyIn(image, adfsDir, hostPath string) error {
	def, err := a.cfg.HostDefaults()
	if err != nil {
		return withCode(exitUsage, err)
	}
	obj, err := hostfile.Load(a.hostfs, hostPath, def)
	if err != nil {
		return withCode(exitHost, fmt.Errorf("error loading host file %q: %w", hostPath, err))
	}
	vol, err := a.openVolume(image, adfs.ModeRW)
	if err != nil {
		return err
	}
	defer vol.Close()
	err = vol.fsys.Save(&obj, adfsDir)
	if err != nil {
		return withCode(exitADFS, fmt.Errorf("error saving ADFS file %s.%s: %w", adfsDir, obj.Name, err))
	}
	return nil
}

func (a *app) copyOut(image, adfsPath, hostPath string) error {
	vol, err := a.openVolume(image, adfs.ModeRead)
	if err != nil {
		return err
	}
	defer vol.Close()
	obj, err := vol.fsys.Find(adfsPath)
	if err == nil && obj.Attr.IsDir() {
		err = adfs.ErrIsDirectory
	}
	if err == nil {
		err = vol.fsys.Load(&obj)
	}
	if err != nil {
		return withCode(exitADFS, fmt.Errorf("error loading ADFS file %q: %w", adfsPath, err))
	}
	if isDir, _ := afero.IsDir(a.hostfs, hostPath); isDir {
		hostPath = filepath.Join(hostPath, hostfile.ADFSToHost(obj.Name))
	}
	err = hostfile.Save(a.hostfs, hostPath, &obj)
	if err != nil {
		return withCode(exitHost, fmt.Errorf("error saving host file %q: %w", hostPath, err))
	}
	return nil
}

func (a *app) catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <disc-image> [adfs-dir]",
		Short: "Catalogue a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "$"
			if len(args) == 2 {
				dir = args[1]
			}
			vol, err := a.openVolume(args[0], adfs.ModeRead)
			if err != nil {
				return err
			}
			defer vol.Close()
			info, err := vol.fsys.DirInfo(dir)
			if err != nil {
				return withCode(exitADFS, err)
			}
			objs, err := vol.fsys.ReadDir(dir)
			if err != nil {
				return withCode(exitADFS, err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%02d) %q\n", info.Name, info.Sequence, info.Title)
			for _, obj := range objs {
				fmt.Fprintf(w, "%-10s %-9s %08X %08X %08X %06X\n",
					obj.Name, obj.Attr, obj.LoadAddr, obj.ExecAddr, obj.Length, obj.Sector)
			}
			fmt.Fprintf(w, "%d of %d entries\n", info.Entries, info.Capacity)
			return nil
		},
	}
}

func (a *app) mapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map <disc-image>",
		Short: "Show the free space map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vol, err := a.openVolume(args[0], adfs.ModeRead)
			if err != nil {
				return err
			}
			defer vol.Close()
			st, err := vol.fsys.Stat()
			if err != nil {
				return withCode(exitADFS, err)
			}
			extents, err := vol.fsys.Extents()
			if err != nil {
				return withCode(exitADFS, err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "sectors %d free %d largest %d disc id %04X boot option %d\n",
				st.TotalSectors, st.FreeSectors, st.LargestFree, st.DiscID, st.BootOption)
			for _, e := range extents {
				fmt.Fprintf(w, "%06X %06X\n", e.Start, e.Length)
			}
			return nil
		},
	}
}

func (a *app) formatCmd() *cobra.Command {
	var (
		size    string
		sectors int
		fcfg    adfs.FormatConfig
	)
	formatCmd := &cobra.Command{
		Use:   "format <disc-image>",
		Short: "Create an empty disc image",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if sectors == 0 {
				switch strings.ToUpper(size) {
				case "S":
					sectors = adfs.SizeS
				case "M":
					sectors = adfs.SizeM
				case "L":
					sectors = adfs.SizeL
				default:
					return fmt.Errorf("unknown size %q, want S, M or L", size)
				}
			}
			f, err := a.hostfs.Create(args[0])
			if err != nil {
				return withCode(exitImage, err)
			}
			defer f.Close()
			var fm adfs.Formatter
			err = fm.Format(adfs.NewImageBlocks(f), sectors, fcfg)
			if err != nil {
				return withCode(exitADFS, err)
			}
			a.log.Info("formatted", "image", args[0], "sectors", sectors)
			return nil
		},
	}
	formatCmd.Flags().StringVar(&size, "size", "L", "standard size: S (160K), M (320K) or L (640K)")
	formatCmd.Flags().IntVar(&sectors, "sectors", 0, "volume size in 256 byte sectors, overrides --size")
	formatCmd.Flags().StringVar(&fcfg.Title, "title", "", "disc title (<=19 characters)")
	formatCmd.Flags().Uint16Var(&fcfg.DiscID, "id", 0, "disc id")
	formatCmd.Flags().Uint8Var(&fcfg.BootOption, "boot", 0, "boot option 0-3")
	return formatCmd
}

func (a *app) mountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mount <disc-image> <mountpoint>",
		Short: "Mount a disc image read-only with FUSE until unmounted",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			vol, err := a.openVolume(args[0], adfs.ModeRead)
			if err != nil {
				return err
			}
			defer vol.Close()
			server, err := adfsfuse.Mount(args[1], vol.fsys, a.log)
			if err != nil {
				return withCode(exitHost, err)
			}
			a.log.Info("mounted", "image", args[0], "at", args[1])
			server.Wait()
			return nil
		},
	}
}
