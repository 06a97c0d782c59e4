package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/havenchat/haven/internal/api"
	"github.com/havenchat/haven/internal/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the support companion.

The conversation history lives in this terminal session; the server keeps
only your long-term profile. Pass --user to continue as a known user, or
omit it for a fresh anonymous session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			userID = uuid.NewString()
		}
		return runChat(cmd, userID)
	},
}

func init() {
	chatCmd.Flags().String("user", "", "user ID to continue an existing profile")
}

const welcomeMessage = `Hello! I'm your mental health support companion.

I'm here to listen, understand, and provide support through whatever you're experiencing. You can talk to me about:
- How you're feeling emotionally
- Stress, anxiety, or worry
- Daily challenges you're facing
- Coping strategies and techniques
- Or anything else on your mind

Our conversation is private and I'll remember our previous interactions to better support you. How are you feeling today?

Available commands:
- Type "show profile" to see your conversation summary
- Type "crisis help" for emergency resources
- Type "exit" to end the session`

func runChat(cmd *cobra.Command, userID string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	fmt.Println(welcomeMessage)
	fmt.Println()

	var history []chat.Turn
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Print(colorize(colorBold, "you> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// Local commands never reach the server.
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Println("Take care of yourself. I'm here whenever you need to talk.")
			return nil
		case "show profile":
			if err := showProfile(cmd, client, userID); err != nil {
				printError("%v", err)
			}
			continue
		case "crisis help", "crisis", "help":
			printCrisisResources()
			continue
		}

		history = append(history, chat.Turn{
			Role:      "user",
			Content:   line,
			Timestamp: time.Now().UTC(),
		})

		resp, err := client.post(cmd.Context(), "/chat", api.ChatRequest{
			UserID:  userID,
			Message: line,
			History: history,
		})
		if err != nil {
			printError("%v", err)
			continue
		}

		var turn api.ChatResponse
		if err := decodeJSON(resp, &turn); err != nil {
			printError("%v", err)
			continue
		}

		history = append(history, chat.Turn{
			Role:      "assistant",
			Content:   turn.Response,
			Timestamp: time.Now().UTC(),
		})

		fmt.Printf("\n%s %s\n\n", colorize(colorCyan, "haven>"), turn.Response)
		if turn.Sensitive {
			fmt.Println(colorize(colorYellow, `Type "crisis help" for emergency resources or "show profile" to see your conversation summary`))
			fmt.Println()
		}
	}
}

func showProfile(cmd *cobra.Command, client *apiClient, userID string) error {
	resp, err := client.get(cmd.Context(), "/users/"+userID+"/profile")
	if err != nil {
		return err
	}

	var p struct {
		Summary     string `json:"summary"`
		MoodHistory []struct {
			Mood          string `json:"mood"`
			ReasonSummary string `json:"reason_summary"`
		} `json:"mood_history"`
		RecurringTopics     []string `json:"recurring_topics"`
		EffectiveTechniques []string `json:"effective_techniques"`
		SessionCount        int      `json:"session_count"`
	}
	if err := decodeJSON(resp, &p); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(colorize(colorBold, "Your Profile Summary:"))
	fmt.Println()
	fmt.Printf("Sessions: %d\n", p.SessionCount)
	fmt.Printf("Summary: %s\n", p.Summary)
	fmt.Println()

	fmt.Println(colorize(colorBold, "Recent Moods:"))
	if len(p.MoodHistory) == 0 {
		fmt.Println("No mood history yet")
	} else {
		moods := p.MoodHistory
		if len(moods) > 5 {
			moods = moods[len(moods)-5:]
		}
		for _, m := range moods {
			fmt.Printf("- %s: %s\n", m.Mood, m.ReasonSummary)
		}
	}
	fmt.Println()

	fmt.Printf("Topics We've Discussed: %s\n", joinOrNone(p.RecurringTopics))
	fmt.Printf("Techniques That Help: %s\n", joinOrNone(p.EffectiveTechniques))
	fmt.Println()
	return nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None yet"
	}
	return strings.Join(items, ", ")
}
