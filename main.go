package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scriv.town/asr"
	"scriv.town/gemini"
	"scriv.town/session"
	"scriv.town/store"
	"scriv.town/web"
	"scriv.town/ws"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(summarizeCmd)

	rootCmd.PersistentFlags().String("asr-api-key", "", "Recognition service API key")
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().String("postgres-url", "", "Postgres URL for the audio archive")
	rootCmd.PersistentFlags().String("archive-dir", "archive", "Directory archive fallback when Postgres is not configured")
	rootCmd.PersistentFlags().Int("http-port", 5001, "HTTP server port")

	viper.BindPFlag("asr_api_key", rootCmd.PersistentFlags().Lookup("asr-api-key"))
	viper.BindPFlag("gemini_api_key", rootCmd.PersistentFlags().Lookup("gemini-api-key"))
	viper.BindPFlag("postgres_url", rootCmd.PersistentFlags().Lookup("postgres-url"))
	viper.BindPFlag("archive_dir", rootCmd.PersistentFlags().Lookup("archive-dir"))
	viper.BindPFlag("http_port", rootCmd.PersistentFlags().Lookup("http-port"))

	transcribeCmd.Flags().String("language", "en-US", "Language code for transcription")
	summarizeCmd.Flags().String("file", "", "Transcript file (default stdin)")
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "scrivener",
	Short: "Audio transcription and summarization service",
	Long:  `Scrivener exposes realtime and batch audio transcription plus transcript summarization over HTTP and WebSocket.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	Run:   runServe,
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe an audio file via a batch job",
	Args:  cobra.ExactArgs(1),
	Run:   runTranscribe,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a transcript",
	Run:   runSummarize,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	asrClient := asr.NewClient(viper.GetString("asr_api_key"), logger)

	sink, cleanup, err := openSink(ctx)
	if err != nil {
		logger.Fatal("open archive store", "error", err)
	}
	defer cleanup()

	var summarizer web.Summarizer
	if key := viper.GetString("gemini_api_key"); key != "" {
		g, err := gemini.NewSummarizer(ctx, key)
		if err != nil {
			logger.Fatal("create summarizer", "error", err)
		}
		defer g.Close()
		summarizer = g
	} else {
		logger.Warn("gemini_api_key not set; /summarize disabled")
	}

	handler := ws.NewHandler(logger)
	manager := session.NewManager(
		func(ctx context.Context, cfg asr.StreamConfig) (session.Bridge, error) {
			return asrClient.OpenStream(ctx, cfg)
		},
		sink,
		handler,
		logger,
	)
	handler.Manager = manager

	server := web.NewServer(asrClient, summarizer, handler, logger)

	port := viper.GetInt("http_port")
	logger.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), server.Router()); err != nil {
		logger.Fatal("server stopped", "error", err)
	}
}

func openSink(ctx context.Context) (store.Sink, func(), error) {
	if url := viper.GetString("postgres_url"); url != "" {
		pg, err := store.NewPG(ctx, url, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}

	dir, err := store.NewDir(viper.GetString("archive_dir"))
	if err != nil {
		return nil, nil, err
	}
	return dir, func() {}, nil
}

func runTranscribe(cmd *cobra.Command, args []string) {
	language, _ := cmd.Flags().GetString("language")

	file, err := os.Open(args[0])
	if err != nil {
		logger.Fatal("open audio file", "error", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	asrClient := asr.NewClient(viper.GetString("asr_api_key"), logger)
	transcript, err := asrClient.Transcribe(ctx, file, args[0], language, 5*time.Second)
	if err != nil {
		logger.Fatal("transcribe", "error", err)
	}

	fmt.Println(transcript)
}

func runSummarize(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("file")

	var transcript []byte
	var err error
	if path == "" {
		transcript, err = io.ReadAll(os.Stdin)
	} else {
		transcript, err = os.ReadFile(path)
	}
	if err != nil {
		logger.Fatal("read transcript", "error", err)
	}

	ctx := context.Background()
	summarizer, err := gemini.NewSummarizer(ctx, viper.GetString("gemini_api_key"))
	if err != nil {
		logger.Fatal("create summarizer", "error", err)
	}
	defer summarizer.Close()

	summary, err := summarizer.Summarize(ctx, string(transcript))
	if err != nil {
		logger.Fatal("summarize", "error", err)
	}

	fmt.Println(summary)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
