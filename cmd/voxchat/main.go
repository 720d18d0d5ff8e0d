package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lmittmann/tint"
	log "log/slog"

	"voxchat/internal/audio"
	"voxchat/internal/chat"
	"voxchat/internal/config"
	"voxchat/internal/ipc"
	"voxchat/internal/llm"
	"voxchat/internal/notify"
	"voxchat/internal/proxy"
	"voxchat/internal/session"
	"voxchat/internal/transcript"
	"voxchat/internal/tts"
	"voxchat/internal/tui"
	"voxchat/internal/web"
	"voxchat/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}

	// the terminal UI owns stdout
	var out io.Writer = os.Stdout
	if !cfg.Web() {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Error("Failed to open log file", "path", cfg.LogFile, "err", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	log.SetDefault(log.New(tint.NewHandler(out, &tint.Options{
		Level:   logLevelMap[cfg.LogLevel],
		NoColor: !cfg.Web(),
	})))

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llmCfg := llm.Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		SystemPrompt: cfg.SystemPrompt,
	}
	if cfg.Proxy != "" {
		httpClient, err := proxy.NewSocksClient(cfg.Proxy)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
			os.Exit(1)
		}
		llmCfg.HTTPClient = httpClient
		log.Debug("Loaded proxy", "proxy", cfg.Proxy)
	}
	completer := llm.New(llmCfg)

	var recOpts []audio.Option
	if cfg.Duck {
		recOpts = append(recOpts, audio.WithDucker(audio.NewDucker([]string{"voxchat"}, 0.25, 10, 300*time.Millisecond)))
	}
	rec := audio.NewRecorder(recOpts...)
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	log.Debug("Loaded recorder")

	whisper := stt.NewLoader(cfg.ModelsDir, stt.Options{Language: cfg.Language})
	if err := whisper.Load(cfg.SpeechModel); err != nil {
		log.Error("Failed to load whisper", "model", cfg.SpeechModel, "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper", "model", cfg.SpeechModel)

	opt := chat.Options{
		Recorder:     rec,
		Transcriber:  whisper,
		Completer:    completer,
		AudioPath:    cfg.AudioFile,
		RecordSettle: 500 * time.Millisecond,
		SendSettle:   time.Second,
	}

	if cfg.Beep != "" {
		beeper, err := notify.NewBeeper(cfg.Beep)
		if err != nil {
			log.Error("Failed to load cue", "path", cfg.Beep, "err", err)
			os.Exit(1)
		}
		opt.Cue = beeper.Beep
	}

	if cfg.Speak {
		lang := cfg.Language
		if lang == "auto" {
			lang = "en"
		}
		opt.Speak = func(text string) error { return tts.Speak(text, lang) }
	}

	ctrl := chat.NewController(
		session.New(cfg.SpeechModel, cfg.LanguageModel),
		transcript.New(80),
		opt,
	)

	if err := ipc.StartServer(ctx, cfg.Socket, func(msg ipc.ControlMessage) {
		if err := ctrl.Handle(ctx, chat.Command{Cmd: msg.Cmd, Arg: msg.Arg}); err != nil {
			log.Warn("Control command failed", "cmd", msg.Cmd, "err", err)
		}
	}); err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful")

	speechModels := stt.AvailableModels()
	languageModels := llm.Models()

	if cfg.Web() {
		srv := web.NewServer(ctx, ctrl, speechModels, languageModels)
		if err := srv.Run(ctx, cfg.WebAddr); err != nil {
			log.Error("Web server failed", "err", err)
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(
		tui.NewModel(ctx, ctrl, tui.Options{
			SpeechModels:   speechModels,
			LanguageModels: languageModels,
		}),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	// Send blocks until the event loop reads it, and the callback may fire
	// from inside Update
	ctrl.OnChange(func() { go p.Send(tui.RefreshMsg{}) })

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		log.Error("Terminal UI failed", "err", err)
		os.Exit(1)
	}
}
