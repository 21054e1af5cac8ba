package service

import (
	"edu_library_backend/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func borrowWith(id string, status model.BorrowStatus, expiry time.Time) model.Borrow {
	return model.Borrow{
		UUIDBase:      model.UUIDBase{ID: id},
		UserID:        1,
		ResourceID:    "book-" + id,
		ResourceType:  model.BorrowResourceBook,
		ResourceTitle: "书目 " + id,
		Status:        status,
		ExpiryDate:    expiry,
	}
}

func catalogFor(borrows []model.Borrow) map[string]*model.Book {
	books := make(map[string]*model.Book, len(borrows))
	for i := range borrows {
		books[borrows[i].ResourceID] = &model.Book{
			UUIDBase: model.UUIDBase{ID: borrows[i].ResourceID},
		}
	}
	return books
}

func TestPartitionBorrows(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	borrows := []model.Borrow{
		borrowWith("a", model.BorrowStatusActive, now.Add(48*time.Hour)),
		borrowWith("b", model.BorrowStatusActive, now.Add(-time.Hour)), // 到期但未清扫
		borrowWith("c", model.BorrowStatusExpired, now.Add(-72*time.Hour)),
		borrowWith("d", model.BorrowStatusReturned, now.Add(-24*time.Hour)),
		borrowWith("e", model.BorrowStatusCompleted, now.Add(24*time.Hour)),
	}

	library := partitionBorrows(borrows, catalogFor(borrows), now)

	require.Len(t, library.Active, 1)
	assert.Equal(t, "a", library.Active[0].ID)
	assert.Equal(t, int64(48*3600), library.Active[0].RemainingSeconds)

	// DB 里还是 active 的到期记录按 expired 展示
	require.Len(t, library.Expired, 2)
	assert.Equal(t, "b", library.Expired[0].ID)
	assert.Equal(t, model.BorrowStatusExpired, library.Expired[0].Status)
	assert.Equal(t, "c", library.Expired[1].ID)

	require.Len(t, library.History, 2)
	assert.Equal(t, "d", library.History[0].ID)
	assert.Equal(t, "e", library.History[1].ID)
}

func TestPartitionBorrowsBookDetails(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	b := borrowWith("a", model.BorrowStatusActive, now.Add(time.Hour))
	b.ResourceID = "book-1"
	b.ResourceTitle = ""

	books := map[string]*model.Book{
		"book-1": {
			UUIDBase: model.UUIDBase{ID: "book-1"},
			Title:    "算法导论",
			Author:   "Thomas H. Cormen",
			Category: "algorithms",
		},
	}

	library := partitionBorrows([]model.Borrow{b}, books, now)

	require.Len(t, library.Active, 1)
	view := library.Active[0]
	assert.Equal(t, "算法导论", view.Title)
	assert.Equal(t, "Thomas H. Cormen", view.Author)
	assert.Equal(t, "algorithms", view.Category)
}

func TestPartitionBorrowsSkipsDeletedBook(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	// 书目已从目录删除的借阅不进任何分区
	gone := borrowWith("a", model.BorrowStatusActive, now.Add(time.Hour))
	kept := borrowWith("b", model.BorrowStatusActive, now.Add(time.Hour))

	books := map[string]*model.Book{
		kept.ResourceID: {UUIDBase: model.UUIDBase{ID: kept.ResourceID}},
	}
	library := partitionBorrows([]model.Borrow{gone, kept}, books, now)

	require.Len(t, library.Active, 1)
	assert.Equal(t, "b", library.Active[0].ID)
	assert.Empty(t, library.Expired)
	assert.Empty(t, library.History)
}

func TestPartitionBorrowsKeepsNonBookResources(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	// 非书目资源不走目录连接，永远保留
	b := borrowWith("a", model.BorrowStatusActive, now.Add(time.Hour))
	b.ResourceType = model.BorrowResourceCourse

	library := partitionBorrows([]model.Borrow{b}, nil, now)

	require.Len(t, library.Active, 1)
	assert.Equal(t, "书目 a", library.Active[0].Title)
	assert.Empty(t, library.Active[0].Author)
}

func TestPartitionBorrowsEmpty(t *testing.T) {
	library := partitionBorrows(nil, nil, time.Now())

	// 空分区序列化为 [] 而不是 null
	assert.NotNil(t, library.Active)
	assert.NotNil(t, library.Expired)
	assert.NotNil(t, library.History)
	assert.Empty(t, library.Active)
}

func TestPopularCacheKeyStable(t *testing.T) {
	filters := BookListFilters{Search: "go", Category: "programming", Page: 2, Limit: 10}

	k1 := popularCacheKey(filters, []string{"b", "a", "c"})
	k2 := popularCacheKey(filters, []string{"c", "a", "b"})
	assert.Equal(t, k1, k2, "课程书目范围的顺序不应影响缓存键")

	k3 := popularCacheKey(filters, nil)
	assert.NotEqual(t, k1, k3)

	filters.Page = 3
	assert.NotEqual(t, k1, popularCacheKey(filters, []string{"a", "b", "c"}))
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, totalPages(0, 20))
	assert.Equal(t, 1, totalPages(1, 20))
	assert.Equal(t, 1, totalPages(20, 20))
	assert.Equal(t, 2, totalPages(21, 20))
	assert.Equal(t, 0, totalPages(100, 0))
}
