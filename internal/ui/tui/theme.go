package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/alist-sync/internal/config"
)

// Catppuccin Mocha palette, overridable from the [theme] config table.
var (
	colorOK     = lipgloss.Color("#a6e3a1")
	colorWarn   = lipgloss.Color("#f9e2af")
	colorFail   = lipgloss.Color("#f38ba8")
	colorAccent = lipgloss.Color("#cba6f7")
	colorInfo   = lipgloss.Color("#89b4fa")
	colorMuted  = lipgloss.Color("#5a6278")
	colorDim    = lipgloss.Color("#3a4055")
	colorBright = lipgloss.Color("#cdd6f4")
)

var (
	styleHeader       lipgloss.Style
	styleTitle        lipgloss.Style
	styleDivider      lipgloss.Style
	styleDone         lipgloss.Style
	styleFailed       lipgloss.Style
	styleSkipped      lipgloss.Style
	styleBackup       lipgloss.Style
	styleActive       lipgloss.Style
	styleStatusWord   lipgloss.Style
	styleFile         lipgloss.Style
	styleDir          lipgloss.Style
	styleSize         lipgloss.Style
	styleError        lipgloss.Style
	styleBigNumber    lipgloss.Style
	styleSparkline    lipgloss.Style
	styleBarFilled    lipgloss.Style
	styleKey          lipgloss.Style
	styleKeyLabel     lipgloss.Style
	styleNotice       lipgloss.Style
	styleSavePrompt   lipgloss.Style
	styleSaveInput    lipgloss.Style
	styleWorkerBusy   lipgloss.Style
	styleWorkerIdle   lipgloss.Style
	styleCounterLabel lipgloss.Style
)

func init() {
	rebuildStyles()
}

func rebuildStyles() {
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleDivider = lipgloss.NewStyle().Foreground(colorDim)
	styleDone = lipgloss.NewStyle().Foreground(colorOK)
	styleFailed = lipgloss.NewStyle().Foreground(colorFail)
	styleSkipped = lipgloss.NewStyle().Foreground(colorMuted)
	styleBackup = lipgloss.NewStyle().Foreground(colorWarn)
	styleActive = lipgloss.NewStyle().Foreground(colorInfo)
	styleStatusWord = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	styleFile = lipgloss.NewStyle().Foreground(colorBright)
	styleDir = lipgloss.NewStyle().Foreground(colorMuted)
	styleSize = lipgloss.NewStyle().Foreground(colorMuted)
	styleError = lipgloss.NewStyle().Foreground(colorFail)
	styleBigNumber = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	styleSparkline = lipgloss.NewStyle().Foreground(colorInfo)
	styleBarFilled = lipgloss.NewStyle().Foreground(colorOK)
	styleKey = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleKeyLabel = lipgloss.NewStyle().Foreground(colorMuted)
	styleNotice = lipgloss.NewStyle().Italic(true).Foreground(colorWarn)
	styleSavePrompt = lipgloss.NewStyle().Foreground(colorMuted)
	styleSaveInput = lipgloss.NewStyle().Foreground(colorBright)
	styleWorkerBusy = lipgloss.NewStyle().Foreground(colorInfo)
	styleWorkerIdle = lipgloss.NewStyle().Foreground(colorDim)
	styleCounterLabel = lipgloss.NewStyle().Foreground(colorMuted)
}

// ApplyTheme overrides the palette with the colors set in tc.
func ApplyTheme(tc config.ThemeConfig) {
	for _, o := range []struct {
		dst *lipgloss.Color
		v   *string
	}{
		{&colorOK, tc.OK},
		{&colorWarn, tc.Warn},
		{&colorFail, tc.Fail},
		{&colorAccent, tc.Accent},
		{&colorInfo, tc.Info},
		{&colorMuted, tc.Muted},
		{&colorDim, tc.Dim},
		{&colorBright, tc.Bright},
	} {
		if o.v != nil {
			*o.dst = lipgloss.Color(*o.v)
		}
	}
	rebuildStyles()
}
