package sqlite

import (
	"context"
	"testing"

	"github.com/meng-fucius/guardbot/internal/db"
)

func TestGuildRosterLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	guild := &db.GuildMeta{ID: -100, Title: "general", Session: "guardbot"}
	if err := client.UpsertGuild(ctx, guild); err != nil {
		t.Fatalf("upsert guild: %v", err)
	}
	guild.Title = "general-renamed"
	if err := client.UpsertGuild(ctx, guild); err != nil {
		t.Fatalf("upsert guild again: %v", err)
	}

	guilds, err := client.GetGuilds(ctx, "guardbot")
	if err != nil {
		t.Fatalf("get guilds: %v", err)
	}
	if len(guilds) != 1 || guilds[0].Title != "general-renamed" {
		t.Fatalf("guilds = %+v, want one renamed guild", guilds)
	}

	if guilds, err = client.GetGuilds(ctx, "other"); err != nil {
		t.Fatalf("get guilds for other session: %v", err)
	}
	if len(guilds) != 0 {
		t.Fatalf("guilds = %+v, want none for other session", guilds)
	}

	for _, userID := range []int64{1, 2, 2} {
		if err := client.InsertMember(ctx, -100, userID); err != nil {
			t.Fatalf("insert member %d: %v", userID, err)
		}
	}

	members, err := client.GetMembers(ctx, -100)
	if err != nil {
		t.Fatalf("get members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %v, want duplicate insert ignored", members)
	}

	isMember, err := client.IsMember(ctx, -100, 1)
	if err != nil {
		t.Fatalf("is member: %v", err)
	}
	if !isMember {
		t.Fatalf("user 1 should be a member")
	}

	if err := client.DeleteMember(ctx, -100, 1); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	if isMember, err = client.IsMember(ctx, -100, 1); err != nil {
		t.Fatalf("is member after delete: %v", err)
	}
	if isMember {
		t.Fatalf("user 1 should be gone after delete")
	}
}
