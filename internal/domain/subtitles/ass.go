package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

type ASSOptions struct {
	// Top is shown for the whole video at the top of the frame.
	Top      string
	Duration time.Duration
	Width    int
	Height   int
}

// RenderASS renders cues as bottom captions, plus an optional fixed top
// caption, for burning into a video with ffmpeg's subtitles filter.
func RenderASS(cues []types.SubtitleCue, opts ASSOptions) string {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1080, 1920
	}

	var b strings.Builder
	b.WriteString(assHeader(opts.Width, opts.Height))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	if top := sanitizeASS(opts.Top); top != "" {
		end := opts.Duration
		if end <= 0 && len(cues) > 0 {
			end = cues[len(cues)-1].End
		}
		writeDialogue(&b, 0, end, "Top", top)
	}
	for _, c := range cues {
		if c.End <= c.Start {
			continue
		}
		writeDialogue(&b, c.Start, c.End, "Bottom", sanitizeASS(c.Text))
	}
	return b.String()
}

func writeDialogue(b *strings.Builder, start, end time.Duration, style, text string) {
	b.WriteString("Dialogue: 0,")
	b.WriteString(assTime(start))
	b.WriteString(",")
	b.WriteString(assTime(end))
	b.WriteString(",")
	b.WriteString(style)
	b.WriteString(",,0,0,0,,")
	b.WriteString(text)
	b.WriteString("\n")
}

func assHeader(w, h int) string {
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Top, Inter, 50, &H00FFFFFF, &H00FFFFFF, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,4,2,8, 60,60,120,1
Style: Bottom, Inter, 40, &H00FFFFFF, &H00FFFFFF, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,4,2,2, 60,60,160,1
`, w, h))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", "\\N")
	return strings.TrimSpace(s)
}
