package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/chatwave/internal/storage"
)

func newRoomCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Manage rooms and their members",
	}
	cmd.AddCommand(
		newRoomCreateCommand(a),
		newRoomAddMemberCommand(a),
		newRoomRemoveMemberCommand(a),
		newRoomMembersCommand(a),
		newRoomHistoryCommand(a),
	)
	return cmd
}

func newRoomCreateCommand(a *app) *cobra.Command {
	var room storage.Room
	var ownerName string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room; the owner becomes its admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			room.ID = uuid.NewString()
			return a.withStore(func(store *storage.Store) error {
				created, err := store.CreateRoom(cmd.Context(), room, ownerName)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "room_id: %s\n", created.ID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&room.Name, "name", "", "room name")
	cmd.Flags().StringVar(&room.Type, "type", storage.RoomTypeGroup, "room type (private or group)")
	cmd.Flags().IntVar(&room.MaxMembers, "max-members", storage.DefaultMaxMembers, "member limit (2-500)")
	cmd.Flags().StringVar(&room.CreatedBy, "owner-id", "", "user id of the owner")
	cmd.Flags().StringVar(&ownerName, "owner-username", "", "username of the owner")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("owner-id")
	return cmd
}

func newRoomAddMemberCommand(a *app) *cobra.Command {
	var userID, username, role string

	cmd := &cobra.Command{
		Use:   "add-member ROOM_ID",
		Short: "Add a member, or change the role of an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Store) error {
				member, err := store.AddMember(cmd.Context(), args[0], userID, username, role)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is %s of %s\n", member.UserID, member.Role, member.RoomID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id")
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&role, "role", storage.RoleMember, "admin, moderator or member")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func newRoomRemoveMemberCommand(a *app) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "remove-member ROOM_ID",
		Short: "Remove a member from a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Store) error {
				if err := store.RemoveMember(cmd.Context(), args[0], userID); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s\n", userID, args[0])
				return err
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func newRoomMembersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "members ROOM_ID",
		Short: "List the members of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var members []storage.Member
			err := a.withStore(func(store *storage.Store) (err error) {
				members, err = store.Members(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}
			rows := lo.Map(members, func(m storage.Member, _ int) []string {
				return []string{m.UserID, m.Username, m.Role, m.JoinedAt.UTC().Format(time.RFC3339)}
			})
			renderTable(cmd.OutOrStdout(), []string{"User ID", "Username", "Role", "Joined"}, rows)
			return nil
		},
	}
}

func newRoomHistoryCommand(a *app) *cobra.Command {
	var skip, limit int

	cmd := &cobra.Command{
		Use:   "history ROOM_ID",
		Short: "Show the newest messages of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var messages []storage.Message
			err := a.withStore(func(store *storage.Store) (err error) {
				messages, err = store.RoomMessages(cmd.Context(), args[0], skip, limit)
				return err
			})
			if err != nil {
				return err
			}
			rows := lo.Map(messages, func(m storage.Message, _ int) []string {
				content := m.Content
				if m.IsDeleted {
					content = "(deleted)"
				}
				return []string{
					m.CreatedAt.UTC().Format(time.RFC3339),
					m.SenderUsername,
					m.Type,
					content,
					strconv.FormatBool(m.IsEdited),
				}
			})
			renderTable(cmd.OutOrStdout(), []string{"Sent", "Sender", "Type", "Content", "Edited"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "messages to skip, newest first")
	cmd.Flags().IntVar(&limit, "limit", 50, "messages to show")
	return cmd
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.AppendBulk(rows)
	table.Render()
}
