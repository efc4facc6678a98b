package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/haven-agent/internal/adapters/speech"
	"github.com/PabloGalante/haven-agent/internal/app/conversation"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

const chatHelp = `Commands:
  /reset          start over
  /voice on|off   speak replies (audio files are written to the audio dir)
  /mode <name>    tell Haven which view you have open (visualizer, mind_map, game_selection, none)
  /quit           leave`

func (a *app) newChatCmd() *cobra.Command {
	var (
		voice    bool
		audioDir string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to Haven in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := audioDir
			if dir == "" {
				dir = a.cfg.Speech.AudioDir
			}
			if dir == "" {
				dir = filepath.Join(os.TempDir(), "haven-audio")
			}
			return a.chat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), voice, dir)
		},
	}
	cmd.Flags().BoolVar(&voice, "voice", false, "speak replies")
	cmd.Flags().StringVar(&audioDir, "audio-dir", "", "where spoken replies are written (overrides HAVEN_AUDIO_DIR)")
	return cmd
}

// printer serializes terminal output between the prompt loop and events.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) message(m *domain.Message) {
	if m == nil {
		return
	}
	who := "you"
	if m.Sender == domain.SenderAgent {
		who = "haven"
	}
	p.printf("%s> %s\n", who, m.Text)
}

func (a *app) chat(ctx context.Context, in io.Reader, out io.Writer, voice bool, audioDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := &printer{out: out}

	svc, err := buildService(ctx, a.cfg, func(synth speech.Synthesizer) conversation.SpeakerFactory {
		return func(domain.SessionID, domain.EventPublisher) conversation.SessionSpeaker {
			return speech.NewFileVoice(synth, audioDir, func(path string) {
				p.printf("  (audio: %s)\n", path)
			}, a.cfg.Timeouts.Speech)
		}
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	started, err := svc.StartSession(ctx, conversation.StartSessionInput{VoiceEnabled: voice})
	if err != nil {
		return err
	}
	id := started.Session.ID

	events, unsubscribe, err := svc.Subscribe(id)
	if err != nil {
		return err
	}
	printed := make(chan struct{})
	defer func() {
		unsubscribe()
		<-printed
	}()
	go func() {
		defer close(printed)
		for evt := range events {
			switch evt.Type {
			case domain.EventActivate:
				p.printf("  [opening %s %q]\n", evt.Kind, evt.Target)
			case domain.EventFollowUpCheck:
				p.printf("  [how is it going with that?]\n")
			}
		}
	}()

	p.printf("%s\n\n", chatHelp)
	for _, m := range started.Messages {
		p.message(m)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.chatCommand(ctx, svc, id, p, line)
			if err != nil {
				p.printf("  ! %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: id, Text: line})
		if err != nil {
			p.printf("  ! %v\n", err)
			continue
		}
		p.message(res.AgentMessage)
	}
}

func (a *app) chatCommand(ctx context.Context, svc *conversation.Service, id domain.SessionID, p *printer, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/reset":
		greeting, err := svc.ResetSession(ctx, id)
		if err != nil {
			return false, err
		}
		p.message(greeting)

	case "/voice":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return false, errors.New("usage: /voice on|off")
		}
		if _, err := svc.SetVoice(ctx, id, fields[1] == "on"); err != nil {
			if errors.Is(err, domain.ErrVoiceUnavailable) {
				p.message(&domain.Message{Sender: domain.SenderAgent, Text: domain.VoiceUnavailable})
				return false, nil
			}
			return false, err
		}
		p.printf("  voice %s\n", fields[1])

	case "/mode":
		if len(fields) != 2 {
			return false, errors.New("usage: /mode <name>")
		}
		mode := domain.SidebarMode(fields[1])
		if mode == "none" {
			mode = domain.SidebarNone
		}
		if _, err := svc.SetSidebarMode(ctx, id, mode); err != nil {
			return false, err
		}
		p.printf("  view: %s\n", fields[1])

	case "/help":
		p.printf("%s\n", chatHelp)

	default:
		return false, fmt.Errorf("unknown command %s, try /help", fields[0])
	}
	return false, nil
}
