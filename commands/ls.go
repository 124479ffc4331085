package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

const (
	EnvColumns = "COLUMNS"

	defaultLineWidth = 80
	columnPadding    = 2
)

// Ls lists directory contents.
func Ls(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "ls [OPTION]... [FILE]...",
		Short: "List information about the FILEs (the current directory by default).",
	}

	// -h is taken by --human-readable.
	opts := cmd.Flags()
	cmd.ShowHelp = opts.BoolLong("help", '?', "show this help and exit")
	listAll := opts.Bool('a', "don't ignore entries starting with .")
	longListing := opts.Bool('l', "use a long listing format")
	humanSize := opts.BoolLong("human-readable", 'h', "print human readable sizes")
	lineWidth := opts.IntLong("width", 'w', lineWidthOf(p), "set the column width, 0 is infinite")

	return cmd.Run(p, func() int {
		sizeFmt := func(bytes int64) string {
			return strconv.FormatInt(bytes, 10)
		}
		if *humanSize {
			sizeFmt = BytesToHuman
		}

		l := &lister{
			all:      *listAll,
			long:     *longListing,
			colorize: isTerminal(p.Stdout) && !color.NoColor,
			width:    *lineWidth,
			sizeFmt:  sizeFmt,
		}
		if l.width <= 0 {
			l.width = math.MaxInt32
		}

		args := cmd.Flags().Args()
		if len(args) == 0 {
			args = []string{"."}
		}
		sort.Strings(args)

		fsys := p.Shell.Fs()
		status := 0

		// Files named directly are listed together ahead of any directory.
		var files []lsEntry
		var dirs []string
		for _, arg := range args {
			fi, err := fsys.Stat(resolvePath(p, arg))
			if err != nil {
				fmt.Fprintf(p.Stderr, "%s: %s: %s\n", p.Args[0], arg, describeFsError(err))
				status = 1
				continue
			}
			if fi.IsDir() {
				dirs = append(dirs, arg)
			} else {
				files = append(files, lsEntry{name: arg, info: fi})
			}
		}

		sections := 0
		if len(files) > 0 {
			l.print(p.Stdout, files, false)
			sections++
		}
		for _, dir := range dirs {
			entries, err := l.readDir(fsys, resolvePath(p, dir))
			if err != nil {
				fmt.Fprintf(p.Stderr, "%s: %s: %s\n", p.Args[0], dir, describeFsError(err))
				status = 1
				continue
			}

			if sections > 0 {
				fmt.Fprintln(p.Stdout)
			}
			if len(args) > 1 {
				fmt.Fprintf(p.Stdout, "%s:\n", dir)
			}
			l.print(p.Stdout, entries, true)
			sections++
		}

		return status
	})
}

type lsEntry struct {
	name string
	info os.FileInfo
}

type lister struct {
	all      bool
	long     bool
	colorize bool
	width    int
	sizeFmt  func(int64) string
}

func (l *lister) readDir(fsys afero.Fs, dir string) ([]lsEntry, error) {
	f, err := fsys.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, err
	}

	var entries []lsEntry
	for _, fi := range infos {
		if !l.all && strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		entries = append(entries, lsEntry{name: fi.Name(), info: fi})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].name < entries[j].name
	})
	return entries, nil
}

func (l *lister) print(w io.Writer, entries []lsEntry, showTotal bool) {
	if l.long {
		l.printLong(w, entries, showTotal)
	} else {
		l.printColumns(w, entries)
	}
}

func (l *lister) printLong(w io.Writer, entries []lsEntry, showTotal bool) {
	if showTotal {
		var total int64
		for _, e := range entries {
			total += e.info.Size()
		}
		fmt.Fprintf(w, "total %s\n", l.sizeFmt(total))
	}

	currentYear := time.Now().Year()
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, e := range entries {
		hardLinks := 1
		if e.info.IsDir() {
			hardLinks = 2
		}

		// Older entries show the year instead of the time of day.
		modTime := e.info.ModTime().Format("Jan _2 2006")
		if e.info.ModTime().Year() >= currentYear {
			modTime = e.info.ModTime().Format("Jan _2 15:04")
		}

		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			e.info.Mode().String(),
			hardLinks,
			l.sizeFmt(e.info.Size()),
			modTime,
			l.colorName(e))
	}
	tw.Flush()
}

func (l *lister) printColumns(w io.Writer, entries []lsEntry) {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}

	rows, colWidths := columnize(names, l.width)
	for row := 0; row < rows; row++ {
		for col, width := range colWidths {
			index := col*rows + row
			if index >= len(names) {
				break
			}
			if col > 0 {
				io.WriteString(w, strings.Repeat(" ", columnPadding))
			}
			io.WriteString(w, l.colorName(entries[index]))

			// Pad only when something follows on this row.
			if next := (col+1)*rows + row; col+1 < len(colWidths) && next < len(names) {
				io.WriteString(w, strings.Repeat(" ", width-len(names[index])))
			}
		}
		fmt.Fprintln(w)
	}
}

func (l *lister) colorName(e lsEntry) string {
	if !l.colorize {
		return e.name
	}
	return dircolor(e.info).Sprint(e.name)
}

// columnize picks the largest number of columns that fits names into width
// when filled top to bottom, returning the row count and column widths.
func columnize(names []string, width int) (rows int, colWidths []int) {
	if len(names) == 0 {
		return 0, nil
	}

	// 1 char name plus padding is the narrowest possible column.
	maxColumns := width / (1 + columnPadding)
	if maxColumns > len(names) {
		maxColumns = len(names)
	}
	if maxColumns < 1 {
		maxColumns = 1
	}

	for columns := maxColumns; columns >= 1; columns-- {
		rows = (len(names) + columns - 1) / columns
		used := (len(names) + rows - 1) / rows

		colWidths = make([]int, used)
		total := (used - 1) * columnPadding
		for i, name := range names {
			col := i / rows
			if n := len(name); n > colWidths[col] {
				total += n - colWidths[col]
				colWidths[col] = n
			}
		}

		if total <= width {
			break
		}
	}
	return rows, colWidths
}

type dircolorTest struct {
	color *color.Color
	test  func(fi os.FileInfo) bool
}

var dircolors = []dircolorTest{
	{color: color.New(color.FgBlue, color.Bold), test: os.FileInfo.IsDir},
	{color: color.New(color.FgCyan, color.Bold), test: func(fi os.FileInfo) bool {
		return fi.Mode()&fs.ModeSymlink != 0
	}},
	{color: color.New(color.FgYellow, color.BgBlack, color.Bold), test: func(fi os.FileInfo) bool {
		return fi.Mode()&(fs.ModeDevice|fs.ModeNamedPipe|fs.ModeSocket|fs.ModeCharDevice) != 0
	}},
	{color: color.New(color.FgGreen, color.Bold), test: func(fi os.FileInfo) bool {
		return fi.Mode().Perm()&0111 != 0
	}},
}

func dircolor(fi os.FileInfo) *color.Color {
	for _, dc := range dircolors {
		if dc.test(fi) {
			return dc.color
		}
	}
	return color.New(color.Reset)
}

func lineWidthOf(p *Proc) int {
	if f, ok := p.Stdout.(*os.File); ok && isTerminal(f) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	if width, err := strconv.Atoi(p.Shell.Env().Getenv(EnvColumns)); err == nil && width > 0 {
		return width
	}
	return defaultLineWidth
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func resolvePath(p *Proc, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.Shell.Getwd(), name)
}

func describeFsError(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "no such file or directory"
	case errors.Is(err, fs.ErrPermission):
		return "permission denied"
	default:
		return err.Error()
	}
}

var _ BuiltinFunc = Ls

func init() {
	addBuiltin("ls", "List directory contents.", Ls)
}
