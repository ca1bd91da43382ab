package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/aishorts/internal/pipeline"
	"github.com/forPelevin/aishorts/internal/usecase"
)

func newMixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mix",
		Short: "Loop a template clip with optional images to the length of a voice track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, "text", true)
			if err != nil {
				return err
			}
			defer e.close()

			video, _ := cmd.Flags().GetString("video")
			audio, _ := cmd.Flags().GetString("audio")
			images, _ := cmd.Flags().GetStringArray("image")
			out, _ := cmd.Flags().GetString("output")

			path, err := e.pipe.Mix(e.ctx, pipeline.MixRequest{Video: video, Audio: audio, Images: images, Out: out})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().String("video", "", "Base video clip")
	cmd.Flags().String("audio", "", "Voice track that sets the final duration")
	cmd.Flags().StringArray("image", nil, "Image inserted between video segments (repeatable)")
	cmd.Flags().String("output", "", "Output file (default $DIR_SCENE_MIXED_RESULT/scene_mixed_<ts>.mp4)")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("audio")
	return cmd
}

func newCutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cut <input>",
		Short: "Keep the first N seconds of a video or audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, _ := cmd.Flags().GetFloat64("seconds")
			if seconds <= 0 {
				return errors.New("--seconds must be > 0")
			}
			e, err := setup(cmd, "text", true)
			if err != nil {
				return err
			}
			defer e.close()

			out, _ := cmd.Flags().GetString("output")
			path, err := e.pipe.Cut(e.ctx, pipeline.CutRequest{
				In:     args[0],
				Cutoff: time.Duration(seconds * float64(time.Second)),
				Out:    out,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().Float64("seconds", 0, "Duration to keep")
	cmd.Flags().String("output", "", "Output file (default <out>/converted_<ts>.<ext>)")
	return cmd
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <input>",
		Short: "Extract or convert the audio track of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, "text", true)
			if err != nil {
				return err
			}
			defer e.close()

			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("output")
			path, err := e.pipe.Extract(e.ctx, pipeline.ExtractRequest{In: args[0], Format: format, Out: out})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().String("format", "mp3", "Output audio format")
	cmd.Flags().String("output", "", "Output file (default <out>/audio_<ts>.<format>)")
	return cmd
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file to object storage and print a presigned URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, "text", true)
			if err != nil {
				return err
			}
			defer e.close()

			expiry, _ := cmd.Flags().GetDuration("expiry")
			check, _ := cmd.Flags().GetBool("check")
			up, err := e.pipe.Upload(e.ctx, pipeline.UploadRequest{Path: args[0], Expiry: expiry, Check: check})
			if err != nil {
				return err
			}
			if check {
				fmt.Fprintln(cmd.OutOrStdout(), "storage round trip ok")
				return nil
			}
			return printJSON(cmd, up)
		},
	}
	cmd.Flags().Duration("expiry", 0, "Presigned URL lifetime (default $PRESIGN_EXPIRY or 1h)")
	cmd.Flags().Bool("check", false, "Upload, download and delete the file to verify storage access")
	return cmd
}

func newLipSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lipsync",
		Short: "Run a lip-sync job on already uploaded media and wait for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, "text", true)
			if err != nil {
				return err
			}
			defer e.close()

			videoURL, _ := cmd.Flags().GetString("video-url")
			audioURL, _ := cmd.Flags().GetString("audio-url")
			out, _ := cmd.Flags().GetString("output")
			job, err := e.pipe.LipSync(e.ctx, pipeline.LipSyncRequest{
				VideoURL: videoURL,
				AudioURL: audioURL,
				Out:      out,
				OnJob:    e.logJob,
			})
			if perr := printJSON(cmd, job); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
	cmd.Flags().String("video-url", "", "Public or presigned URL of the video")
	cmd.Flags().String("audio-url", "", "Public or presigned URL of the audio")
	cmd.Flags().String("output", "", "Download the result to this file")
	_ = cmd.MarkFlagRequired("video-url")
	_ = cmd.MarkFlagRequired("audio-url")
	return cmd
}

func newShortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shorts",
		Short: "Fit a template clip to a voice track, upload both and lip-sync them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, "text", true)
			if err != nil {
				return err
			}
			defer e.close()

			video, _ := cmd.Flags().GetString("video")
			audio, _ := cmd.Flags().GetString("audio")
			images, _ := cmd.Flags().GetStringArray("image")
			loop, _ := cmd.Flags().GetBool("loop")
			res, err := e.pipe.Shorts(e.ctx, pipeline.ShortsRequest{
				Video:  video,
				Audio:  audio,
				Images: images,
				Loop:   loop,
				OnJob:  e.logJob,
			})
			if err != nil {
				if res.RunDir != "" {
					e.logger.Error("shorts failed", "run_dir", res.RunDir)
				}
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("video", "", "Template video clip")
	cmd.Flags().String("audio", "", "Voice track")
	cmd.Flags().StringArray("image", nil, "Image inserted between video segments (repeatable)")
	cmd.Flags().Bool("loop", false, "Loop the template even without images")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("audio")
	return cmd
}

func newSubtitlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtitles <audio>",
		Short: "Transcribe a voice track into an SRT file and optionally burn it into a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, "text", true)
			if err != nil {
				return err
			}
			defer e.close()

			burn, _ := cmd.Flags().GetString("burn")
			top, _ := cmd.Flags().GetString("top")
			res, err := e.pipe.Subtitles(e.ctx, pipeline.SubtitlesRequest{
				Audio: args[0],
				Burn:  burn,
				Top:   top,
				OnJob: e.logJob,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("burn", "", "Video to burn the subtitles into")
	cmd.Flags().String("top", "", "Fixed caption shown at the top of the burned video")
	return cmd
}

func newScriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Generate a narration script sized to a speaking time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, "text", true)
			if err != nil {
				return err
			}
			defer e.close()

			var in usecase.ScriptInput
			in.Who, _ = cmd.Flags().GetString("who")
			in.Seconds, _ = cmd.Flags().GetInt("seconds")
			in.Contents, _ = cmd.Flags().GetString("contents")
			in.Template, _ = cmd.Flags().GetString("template")
			in.Out, _ = cmd.Flags().GetString("output")

			text, err := e.pipe.Script(e.ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().String("who", "", "Speaker persona")
	cmd.Flags().Int("seconds", 30, "Target speaking time in seconds")
	cmd.Flags().String("contents", "", "What the script should talk about")
	cmd.Flags().String("template", "", "Prompt template file (default $PROMPT_TEMPLATE or built-in)")
	cmd.Flags().String("output", "", "Also write the script to this file")
	_ = cmd.MarkFlagRequired("contents")
	return cmd
}

func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Synthesize speech, cloning a voice from a sample when no voice id is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in usecase.VoiceInput
			in.VoiceID, _ = cmd.Flags().GetString("voice-id")
			in.Sample, _ = cmd.Flags().GetString("sample")
			in.Name, _ = cmd.Flags().GetString("name")
			in.Description, _ = cmd.Flags().GetString("description")
			in.Text, _ = cmd.Flags().GetString("text")
			in.TextFile, _ = cmd.Flags().GetString("text-file")
			in.Out, _ = cmd.Flags().GetString("output")
			if in.VoiceID == "" && in.Sample == "" {
				return errors.New("either --voice-id or --sample is required")
			}
			if in.Text == "" && in.TextFile == "" {
				return errors.New("either --text or --text-file is required")
			}

			e, err := setup(cmd, "text", true)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.pipe.Voice(e.ctx, in)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("voice-id", "", "Existing voice to synthesize with")
	cmd.Flags().String("sample", "", "Audio sample to clone a new voice from")
	cmd.Flags().String("name", "aishorts", "Name of the cloned voice")
	cmd.Flags().String("description", "", "Description of the cloned voice")
	cmd.Flags().String("text", "", "Text to speak")
	cmd.Flags().String("text-file", "", "File holding the text to speak")
	cmd.Flags().String("output", "", "Output mp3 (default <out>/voice_<ts>.mp3)")
	return cmd
}
