// clubchat CLI - command line client for clubchat
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/dsavault/clubchat/clients/go/clubchat"
	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/models"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CLUBCHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := clubchat.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "rooms":
		rooms, err := client.Rooms(ctx)
		exitOnError(err)
		for _, r := range rooms {
			fmt.Printf("  %-8s %s - %s\n", r.ID, r.Name, r.Description)
		}

	case "login":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: clubchat login <token>")
			os.Exit(1)
		}
		client.Token = strings.TrimPrefix(os.Args[2], "Bearer ")
		user, err := client.Register(ctx, "")
		exitOnError(err)
		exitOnError(client.SaveConfig())
		fmt.Printf("Signed in as: %s (%s)\n", user.Label(), user.ID)

	case "register":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: clubchat register <display name>")
			os.Exit(1)
		}
		user, err := client.Register(ctx, strings.Join(os.Args[2:], " "))
		exitOnError(err)
		exitOnError(client.SaveConfig())
		fmt.Printf("Profile saved: %s (%s)\n", user.Label(), user.ID)

	case "users":
		me := signedIn(ctx, client)
		users, err := client.FetchAllUsers(ctx, me.ID)
		exitOnError(err)
		if len(os.Args) > 2 {
			users = chat.FilterUsers(users, strings.Join(os.Args[2:], " "))
		}
		for _, u := range users {
			fmt.Printf("  %s  %s <%s>\n", u.ID, u.Label(), u.Email)
		}

	case "read":
		roomID := "general"
		if len(os.Args) > 2 {
			roomID = os.Args[2]
		}
		msgs, err := client.RoomMessages(ctx, roomID)
		exitOnError(err)
		printMessages(msgs)

	case "post":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: clubchat post <room> <message>")
			os.Exit(1)
		}
		me := signedIn(ctx, client)
		msg, err := client.SendRoomMessage(ctx, os.Args[2], me, strings.Join(os.Args[3:], " "))
		exitOnError(err)
		fmt.Printf("Posted: %s\n", msg.ID)

	case "dm":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: clubchat dm <user_id> [message]")
			os.Exit(1)
		}
		me := signedIn(ctx, client)
		if len(os.Args) == 3 {
			msgs, err := client.DirectMessages(ctx, os.Args[2])
			exitOnError(err)
			printMessages(msgs)
			return
		}
		to, err := client.GetUser(ctx, os.Args[2])
		exitOnError(err)
		msg, err := client.SendDirectMessage(ctx, me, *to, strings.Join(os.Args[3:], " "))
		var partial *chat.PartialInboxWriteError
		if errors.As(err, &partial) {
			fmt.Fprintf(os.Stderr, "Warning: sent %s but the inbox did not update\n", partial.Message.ID)
			return
		}
		exitOnError(err)
		fmt.Printf("Sent: %s\n", msg.ID)

	case "inbox":
		signedIn(ctx, client)
		entries, err := client.Inbox(ctx)
		exitOnError(err)
		for _, e := range entries {
			fmt.Printf("[%s] %s (%s): %s\n", e.LastMessageDisplayTime, e.DisplayName, e.CounterpartID, e.LastMessage)
		}

	case "chat":
		me := signedIn(ctx, client)
		exitOnError(runChat(ctx, client, me))

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// signedIn loads the caller's profile or exits.
func signedIn(ctx context.Context, client *clubchat.Client) *models.User {
	if client.Token == "" || client.UserID == "" {
		fmt.Fprintln(os.Stderr, "Not signed in. Run: clubchat login <token>")
		os.Exit(1)
	}
	me, err := client.GetUser(ctx, client.UserID)
	exitOnError(err)
	return me
}

func printMessages(msgs []models.Message) {
	for _, msg := range msgs {
		from := msg.DisplayName
		if from == "" {
			from = msg.Author
		}
		fmt.Printf("[%s] %s: %s\n", msg.DisplayTime, from, msg.Body)
	}
}

func usage() {
	fmt.Println(`clubchat CLI - club chat and direct messages

Usage: clubchat <command> [options]

Commands:
  login <token>            Save a session from a signed identity token
  register <name>          Set your display name
  rooms                    List clubs
  read [room]              Read a club's messages
  post <room> <message>    Post to a club
  users [filter]           List other users
  dm <user_id> [message]   Read or send direct messages
  inbox                    List your conversations
  chat                     Open the interactive client
  health                   Check server health

Environment:
  CLUBCHAT_URL      Server URL (default: http://localhost:8080)
  CLUBCHAT_CONFIG   Config directory (default: ~/.clubchat)
  CLUBCHAT_TIMEZONE Zone for unsent message times; match the server's TIMEZONE`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
