package services_test

import (
	"context"
	"net/http"
	"testing"

	"grocerylist/application/cache"
	"grocerylist/application/services"
	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/validators"
	"grocerylist/domain/core/valueobjects"
	domainservices "grocerylist/domain/services"
	"grocerylist/infrastructure/remote"
	"grocerylist/infrastructure/remote/remotetest"
	pkgerrors "grocerylist/pkg/errors"
	"grocerylist/tests/fixtures"
	"grocerylist/tests/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func amount(v float64) *float64 { return &v }

func form(title string, v float64) validators.ItemForm {
	return validators.ItemForm{Title: title, Amount: amount(v)}
}

type GroceryServiceSuite struct {
	suite.Suite
	ctx     context.Context
	server  *remotetest.Server
	cache   *cache.QueryCache
	sink    *mocks.RecordingSink
	metrics *mocks.RecordingMetrics
	service *services.GroceryService
}

func TestGroceryServiceSuite(t *testing.T) {
	suite.Run(t, new(GroceryServiceSuite))
}

func (s *GroceryServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.sink = &mocks.RecordingSink{}
	s.metrics = mocks.NewRecordingMetrics()
}

func (s *GroceryServiceSuite) TearDownTest() {
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
	if s.cache != nil {
		s.cache.Close()
	}
}

// seed starts a fresh store holding items and builds the service against it
func (s *GroceryServiceSuite) seed(items ...entities.GroceryItem) {
	s.server = remotetest.NewServer(items...)
	client := remote.NewClient(s.server.URL, nil)
	s.cache = cache.NewQueryCache(s.sink, s.metrics, nil, cache.Options{ReadRetries: 1})
	s.service = services.NewGroceryService(
		client, s.cache, nil, nil,
		&valueobjects.SequenceIDs{Prefix: "new-"},
		s.metrics, nil,
	)
}

func (s *GroceryServiceSuite) TestAddToEmptyListInserts() {
	s.seed()

	res, err := s.service.AddItem(s.ctx, form("Milk", 2))
	s.Require().NoError(err)

	s.Equal(domainservices.ActionInsert, res.Action)
	s.Equal("new-1", res.Item.ID.String())
	s.Equal("Milk", res.Item.Title)
	s.Equal(2.0, res.Item.Amount)
	s.False(res.Item.Bought)

	stored := s.server.Items()
	s.Require().Len(stored, 1)
	s.Equal("new-1", stored[0].ID.String())
	s.Equal(1, s.metrics.Decision(services.DecisionInsert))
}

func (s *GroceryServiceSuite) TestAddFoldsIntoUnboughtItem() {
	s.seed(fixtures.Item("1", "Milk", 1, false))

	res, err := s.service.AddItem(s.ctx, form(" milk ", 2))
	s.Require().NoError(err)

	s.Equal(domainservices.ActionFold, res.Action)
	s.Equal("1", res.Item.ID.String())
	s.Equal(3.0, res.Item.Amount)

	stored := s.server.Items()
	s.Require().Len(stored, 1)
	s.Equal(3.0, stored[0].Amount)
	s.Equal("Milk", stored[0].Title)
	s.Equal(0, s.server.Calls(http.MethodPost))
	s.Equal(1, s.server.Calls(http.MethodPatch))
}

func (s *GroceryServiceSuite) TestAddNextToBoughtItemInserts() {
	s.seed(fixtures.Item("1", "Milk", 1, true))

	res, err := s.service.AddItem(s.ctx, form("Milk", 1))
	s.Require().NoError(err)

	s.Equal(domainservices.ActionInsert, res.Action)
	s.Len(s.server.Items(), 2)
}

func (s *GroceryServiceSuite) TestInvalidFormNeverReachesStore() {
	s.seed(fixtures.Item("1", "Milk", 1, false))

	_, err := s.service.AddItem(s.ctx, form("   ", 1))
	s.Require().Error(err)
	s.True(pkgerrors.IsValidation(err))

	_, err = s.service.EditItem(s.ctx, valueobjects.MustItemID("1"), validators.ItemForm{Title: "Milk"})
	s.Require().Error(err)

	s.Equal(0, s.server.TotalCalls())
}

func (s *GroceryServiceSuite) TestToggleWithoutSibling() {
	s.seed(fixtures.Item("1", "Eggs", 12, false))

	res, err := s.service.ToggleBought(s.ctx, valueobjects.MustItemID("1"))
	s.Require().NoError(err)

	s.Equal(domainservices.ActionToggle, res.Action)
	s.True(res.Item.Bought)
	s.Nil(res.Removed)
	s.True(s.server.Items()[0].Bought)

	res, err = s.service.ToggleBought(s.ctx, valueobjects.MustItemID("1"))
	s.Require().NoError(err)
	s.False(res.Item.Bought)
	s.Equal(2, s.metrics.Decision(services.DecisionToggle))
}

func (s *GroceryServiceSuite) TestToggleConsolidatesIntoSibling() {
	s.seed(
		fixtures.Item("1", "Milk", 2, true),
		fixtures.Item("2", "milk", 1, false),
		fixtures.Item("3", "Bread", 1, false),
	)

	res, err := s.service.ToggleBought(s.ctx, valueobjects.MustItemID("2"))
	s.Require().NoError(err)

	s.Equal(domainservices.ActionConsolidate, res.Action)
	s.Equal("1", res.Item.ID.String())
	s.Equal(3.0, res.Item.Amount)
	s.Require().NotNil(res.Removed)
	s.Equal("2", res.Removed.String())
	s.False(res.FellBack)

	stored := s.server.Items()
	s.Require().Len(stored, 2)
	s.Equal("1", stored[0].ID.String())
	s.Equal(3.0, stored[0].Amount)
	s.True(stored[0].Bought)
	s.Equal("3", stored[1].ID.String())

	list, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, list.Counts.ToBuy)
	s.Equal(1, list.Counts.Completed)
	s.Equal(1, s.metrics.Decision(services.DecisionConsolidate))
}

func (s *GroceryServiceSuite) TestConsolidationFailureFallsBackToToggle() {
	s.seed(
		fixtures.Item("1", "Milk", 2, true),
		fixtures.Item("2", "Milk", 1, false),
	)
	_, err := s.service.List(s.ctx)
	s.Require().NoError(err)

	s.server.FailNext(http.MethodPatch, 1)

	res, err := s.service.ToggleBought(s.ctx, valueobjects.MustItemID("2"))
	s.Require().NoError(err)

	s.Equal(domainservices.ActionToggle, res.Action)
	s.True(res.FellBack)
	s.Equal("2", res.Item.ID.String())
	s.True(res.Item.Bought)

	stored := s.server.Items()
	s.Require().Len(stored, 2)
	s.Equal(2.0, stored[0].Amount, "sibling keeps its amount")
	s.True(stored[1].Bought)
	s.Equal(0, s.server.Calls(http.MethodDelete))

	s.Equal(0, s.sink.Count(), "the failed consolidation is handled locally")
	s.Equal(1, s.metrics.Decision(services.DecisionConsolidateFallback))
	s.Equal(1, s.metrics.Mutation("update", "rolled_back"))
}

func (s *GroceryServiceSuite) TestMilkScenarios() {
	s.Run("lowercase submission folds", func() {
		s.seed(fixtures.Item("1", "Milk", 2, false))

		_, err := s.service.AddItem(s.ctx, form("milk", 1))
		s.Require().NoError(err)

		stored := s.server.Items()
		s.Require().Len(stored, 1)
		s.Equal("1", stored[0].ID.String())
		s.Equal("Milk", stored[0].Title)
		s.Equal(3.0, stored[0].Amount)
		s.False(stored[0].Bought)
		s.server.Close()
	})

	s.Run("buying the duplicate consolidates", func() {
		s.seed(fixtures.Item("1", "Milk", 2, false), fixtures.Item("2", "Milk", 1, true))

		_, err := s.service.ToggleBought(s.ctx, valueobjects.MustItemID("1"))
		s.Require().NoError(err)

		stored := s.server.Items()
		s.Require().Len(stored, 1)
		s.Equal("2", stored[0].ID.String())
		s.Equal(3.0, stored[0].Amount)
		s.True(stored[0].Bought)
	})
}

func (s *GroceryServiceSuite) TestToggleMissingItem() {
	s.seed(fixtures.Item("1", "Milk", 1, false))

	_, err := s.service.ToggleBought(s.ctx, valueobjects.MustItemID("404"))
	s.Require().Error(err)
	s.True(pkgerrors.IsNotFound(err))
	s.Equal(0, s.server.Calls(http.MethodPatch))
}

func (s *GroceryServiceSuite) TestDeleteTwice() {
	s.seed(fixtures.Item("1", "Milk", 1, false), fixtures.Item("2", "Bread", 1, false))

	s.Require().NoError(s.service.DeleteItem(s.ctx, valueobjects.MustItemID("1")))
	before, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, before.Counts.Total)

	err = s.service.DeleteItem(s.ctx, valueobjects.MustItemID("1"))
	s.Require().Error(err)
	s.True(pkgerrors.IsNotFound(err))
	s.Equal(http.StatusNotFound, pkgerrors.Status(err))

	after, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Equal(before.ToBuy, after.ToBuy)

	s.Require().Equal(1, s.sink.Count())
	s.Equal("mutation:delete", s.sink.Sources[0])
}

func (s *GroceryServiceSuite) TestEditItem() {
	s.seed(fixtures.Item("1", "Milk", 1, false))

	item, err := s.service.EditItem(s.ctx, valueobjects.MustItemID("1"), form(" Oat milk ", 2))
	s.Require().NoError(err)
	s.Equal("Oat milk", item.Title)
	s.Equal(2.0, item.Amount)
	s.Equal("Oat milk", s.server.Items()[0].Title)
}

func (s *GroceryServiceSuite) TestDeletePrompt() {
	s.seed(fixtures.Item("1", "Milk", 1, false))

	prompt, err := s.service.DeletePrompt(s.ctx, valueobjects.MustItemID("1"))
	s.Require().NoError(err)
	s.Equal("Delete Milk?", prompt.Title)
	s.Equal(`Are you sure you want to delete "Milk"? This action cannot be undone.`, prompt.Message)
	s.Equal("Delete", prompt.Confirm)

	_, err = s.service.DeletePrompt(s.ctx, valueobjects.MustItemID("9"))
	s.True(pkgerrors.IsNotFound(err))
}

func (s *GroceryServiceSuite) TestRestartReloads() {
	s.seed(fixtures.Item("1", "Milk", 1, false))

	_, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	gets := s.server.Calls(http.MethodGet)

	list, err := s.service.Restart(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, list.Counts.Total)
	s.Equal(gets+1, s.server.Calls(http.MethodGet))
}

func (s *GroceryServiceSuite) TestListFailureIsReported() {
	s.seed()
	s.server.FailNext(http.MethodGet, 2)

	_, err := s.service.List(s.ctx)
	s.Require().Error(err)
	s.True(pkgerrors.IsRemoteRequestFailed(err))
	s.Equal(2, s.server.Calls(http.MethodGet), "one read retry")
	s.Equal(1, s.sink.Count())
}

func TestGroup(t *testing.T) {
	t.Run("partitions keeping order", func(t *testing.T) {
		items := []entities.GroceryItem{
			fixtures.Item("1", "Milk", 1, true),
			fixtures.Item("2", "Bread", 1, false),
			fixtures.Item("3", "Eggs", 6, true),
			fixtures.Item("4", "Salt", 1, false),
		}
		list := services.Group(items, true)

		require.Len(t, list.ToBuy, 2)
		require.Len(t, list.Completed, 2)
		assert.Equal(t, "2", list.ToBuy[0].ID.String())
		assert.Equal(t, "4", list.ToBuy[1].ID.String())
		assert.Equal(t, "1", list.Completed[0].ID.String())
		assert.Equal(t, "3", list.Completed[1].ID.String())
		assert.Equal(t, services.ListCounts{ToBuy: 2, Completed: 2, Total: 4}, list.Counts)
		assert.False(t, list.Empty)
		assert.True(t, list.Fetching)
	})

	t.Run("empty list", func(t *testing.T) {
		list := services.Group(nil, false)
		assert.True(t, list.Empty)
		assert.Equal(t, "Your grocery list is empty.\nAdd your first item above!", list.EmptyMessage)
		assert.NotNil(t, list.ToBuy)
		assert.NotNil(t, list.Completed)
	})
}

func TestAddItemCreateFailureRollsBack(t *testing.T) {
	store := &mocks.MockRemoteStore{}
	sink := &mocks.RecordingSink{}
	qc := cache.NewQueryCache(sink, nil, nil, cache.Options{})
	defer qc.Close()

	store.On("List", mock.Anything).Return([]entities.GroceryItem{}, nil)
	store.On("Create", mock.Anything, mock.Anything).
		Return(entities.GroceryItem{}, pkgerrors.NewRemoteRequestError(remote.OpCreate, 500, "Insert failed", nil)).Once()

	svc := services.NewGroceryService(store, qc, nil, nil, &valueobjects.SequenceIDs{}, nil, nil)

	_, err := svc.AddItem(context.Background(), form("Milk", 1))
	require.Error(t, err)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.True(t, list.Empty)
	assert.Equal(t, 1, sink.Count())
	store.AssertNumberOfCalls(t, "Create", 1)
}
