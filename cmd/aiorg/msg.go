package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/aiorg/internal/org"
)

var msgCmd = &cobra.Command{
	Use:   "msg",
	Short: "Send and read agent messages",
}

var msgSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to an agent",
	RunE:  runMsgSend,
}

var msgInboxCmd = &cobra.Command{
	Use:   "inbox [agent-id]",
	Short: "List an agent's pending messages, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runMsgInbox,
}

var msgAckCmd = &cobra.Command{
	Use:   "ack [message-id]",
	Short: "Mark a message consumed",
	Args:  cobra.ExactArgs(1),
	RunE:  runMsgAck,
}

var (
	msgFrom    string
	msgTo      string
	msgType    string
	msgContent string
)

func init() {
	msgCmd.AddCommand(msgSendCmd, msgInboxCmd, msgAckCmd)

	msgSendCmd.Flags().StringVar(&msgFrom, "from", org.SystemCreator, "Sender agent id")
	msgSendCmd.Flags().StringVar(&msgTo, "to", "", "Recipient agent id (required)")
	msgSendCmd.Flags().StringVar(&msgType, "type", "note", "Message type")
	msgSendCmd.Flags().StringVar(&msgContent, "content", "", "JSON content")
	msgSendCmd.MarkFlagRequired("to")
	msgInboxCmd.Flags().BoolVar(&asJSON, "json", false, "Print messages as JSON")
}

func runMsgSend(cmd *cobra.Command, args []string) error {
	var content json.RawMessage
	if msgContent != "" {
		if !json.Valid([]byte(msgContent)) {
			return errors.New("--content must be valid JSON")
		}
		content = json.RawMessage(msgContent)
	}
	return withEngine(cmd.Context(), func(e engine) error {
		id, err := e.SendMessage(cmd.Context(), msgFrom, msgTo, msgType, content)
		if err != nil {
			return err
		}
		fmt.Printf("Sent message %s to %s\n", id, msgTo)
		return nil
	})
}

func runMsgInbox(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		msgs, err := e.PendingMessages(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(msgs)
		}
		if len(msgs) == 0 {
			fmt.Println("No pending messages.")
			return nil
		}
		w := newTable(os.Stdout)
		fmt.Fprintln(w, "ID\tTIME\tFROM\tTYPE\tCONTENT")
		for _, m := range msgs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Timestamp.Format("2006-01-02 15:04:05"), m.From, m.Type, string(m.Content))
		}
		return w.Flush()
	})
}

func runMsgAck(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e engine) error {
		if err := e.Acknowledge(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Acknowledged %s\n", args[0])
		return nil
	})
}
