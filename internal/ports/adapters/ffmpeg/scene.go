package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/forPelevin/aishorts/internal/types"
)

const (
	defaultWidth  = 1080
	defaultHeight = 1920
	defaultFPS    = 30
)

// sceneArgs builds the ffmpeg input and filter arguments for a scene mix.
// Input 0 is the base video, input 1 the audio track, and each image segment
// adds one looped still input. Every piece is normalised to the base clip's
// frame size and rate and then concatenated in timeline order.
func sceneArgs(r types.SceneRender) ([]string, error) {
	if len(r.Segments) == 0 {
		return nil, errors.New("scene has no segments")
	}
	w, h := r.Base.Width, r.Base.Height
	if w <= 0 || h <= 0 {
		w, h = defaultWidth, defaultHeight
	}
	// libx264 with yuv420p needs even dimensions
	w, h = w&^1, h&^1
	fps := r.Base.FPS
	if fps <= 0 {
		fps = defaultFPS
	}
	norm := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%s,format=yuv420p",
		w, h, w, h, strconv.FormatFloat(fps, 'f', -1, 64),
	)

	args := []string{"-y", "-i", r.Base.Path, "-i", r.Audio}
	var (
		filters []string
		labels  strings.Builder
		n       int
	)
	input := 2
	for i, seg := range r.Segments {
		switch seg.Kind {
		case types.SegmentVideo:
			if len(seg.Sources) == 0 {
				return nil, fmt.Errorf("video segment %d has no sources", i)
			}
			for _, src := range seg.Sources {
				label := fmt.Sprintf("s%d", n)
				filters = append(filters, fmt.Sprintf(
					"[0:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS,%s[%s]",
					fmtSeconds(src.Start), fmtSeconds(src.End), norm, label,
				))
				fmt.Fprintf(&labels, "[%s]", label)
				n++
			}
		case types.SegmentImage:
			d := fmtSeconds(seg.Duration())
			args = append(args, "-loop", "1", "-t", d, "-i", seg.Image)
			label := fmt.Sprintf("s%d", n)
			filters = append(filters, fmt.Sprintf(
				"[%d:v]%s,trim=duration=%s,setpts=PTS-STARTPTS[%s]",
				input, norm, d, label,
			))
			fmt.Fprintf(&labels, "[%s]", label)
			input++
			n++
		default:
			return nil, fmt.Errorf("segment %d has unknown kind %q", i, seg.Kind)
		}
	}
	filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[outv]", labels.String(), n))

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[outv]",
		"-map", "1:a",
		"-t", fmtSeconds(r.Duration),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
	)
	return args, nil
}
