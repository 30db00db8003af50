package service

import (
	"context"
	"fmt"
	"strings"

	"shopassistant/internal/metrics"
	"shopassistant/internal/model"
	"shopassistant/internal/nlu"
	"shopassistant/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Quick reply sets
var (
	searchEmptyReplies  = []string{"Sản phẩm hot", "Tìm theo danh mục", "Thay đổi bộ lọc", "Liên hệ hỗ trợ"}
	sizeHelpReplies     = []string{"Áo", "Quần", "Giày", "Hướng dẫn đo size", "Bảng size chi tiết"}
	orderHelpReplies    = []string{"Kiểm tra giỏ hàng", "Hướng dẫn thanh toán", "Theo dõi đơn hàng", "Chính sách giao hàng"}
	priceRangeReplies   = []string{"Dưới 200k", "200k - 500k", "500k - 1tr", "Trên 1tr", "Xem khuyến mãi"}
	greetingReplies     = []string{"Tìm sản phẩm", "Hỗ trợ chọn size", "Kiểm tra đơn hàng", "Xem khuyến mãi"}
	generalReplies      = []string{"Tìm sản phẩm", "Hỗ trợ chọn size", "Chính sách đổi trả", "Liên hệ hỗ trợ"}
	unavailableReplies  = []string{"Danh mục sản phẩm", "Liên hệ hỗ trợ", "Thử lại"}
	failureQuickReplies = []string{"Tìm sản phẩm", "Liên hệ hỗ trợ", "Thử lại"}
)

const (
	unavailableMessage = "Xin lỗi, hệ thống đang cập nhật nên tôi chưa tra cứu được lúc này. Bạn có thể:\n\n• Xem danh mục sản phẩm\n• Liên hệ hỗ trợ\n• Thử lại sau"
	failureMessage     = "Xin lỗi, có lỗi xảy ra khi xử lý tin nhắn. Vui lòng thử lại."
	generalFallback    = "Tôi chưa hiểu rõ câu hỏi của bạn. Bạn có thể hỏi tôi về sản phẩm, size, đặt hàng, hoặc chính sách của shop."
	defaultAddressTerm = "bạn"
)

// productsShownInline is how many results are written into the reply text
const productsShownInline = 3

var vnd = message.NewPrinter(language.Vietnamese)

// formatVND groups thousands the Vietnamese way
func formatVND(amount int64) string {
	return vnd.Sprintf("%d", amount)
}

func (s *ChatService) handleProductSearch(ctx context.Context, in ChatInput, reply *model.ChatReply, entities nlu.Entities) {
	filters := entities.Clone()
	action := model.Action{
		Type:           model.ActionProductSearch,
		Query:          in.Message,
		FiltersApplied: &filters,
	}

	products, err := s.catalog.SearchProducts(ctx, repository.PredicateFromEntities(entities), s.resultLimit)
	if err != nil {
		s.unavailable(reply, metrics.ReasonCatalog, err)
		reply.ActionsTaken = append(reply.ActionsTaken, action)
		return
	}
	metrics.ChatSearchResults.Observe(float64(len(products)))
	products = s.rankForUser(ctx, userID(in.User), products)
	action.ResultsCount = len(products)
	reply.ActionsTaken = append(reply.ActionsTaken, action)

	if len(products) == 0 {
		reply.Message = noResultsMessage(entities)
		reply.QuickReplies = append(reply.QuickReplies, searchEmptyReplies...)
		return
	}

	reply.SuggestedProducts = products

	var b strings.Builder
	filterText := ""
	if parts := describeFilters(entities); len(parts) > 0 {
		filterText = " (" + strings.Join(parts, ", ") + ")"
	}
	fmt.Fprintf(&b, "🛍️ Tôi tìm thấy **%d sản phẩm**%s phù hợp:\n\n", len(products), filterText)
	for i, p := range products {
		if i == productsShownInline {
			break
		}
		price := "Liên hệ"
		if p.Price > 0 {
			price = formatVND(p.Price)
		}
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, p.Name)
		fmt.Fprintf(&b, "   💰 %s VND\n", price)
		fmt.Fprintf(&b, "   👉 [Xem chi tiết & mua ngay](/#/products/%d)\n\n", p.ID)
	}
	if len(products) > productsShownInline {
		fmt.Fprintf(&b, "...và **%d sản phẩm khác** bên dưới!", len(products)-productsShownInline)
	}
	reply.Message = strings.TrimRight(b.String(), "\n")

	quick := []string{"Xem chi tiết"}
	if len(entities.Colors) == 0 {
		quick = append(quick, "Lọc theo màu")
	}
	if entities.PriceRange == nil {
		quick = append(quick, "Lọc theo giá")
	}
	if len(entities.Brands) == 0 {
		quick = append(quick, "Lọc theo thương hiệu")
	}
	reply.QuickReplies = append(quick, "Hỗ trợ chọn size", "Tìm sản phẩm khác")
}

// describeFilters lists the active filters in display order: color, brand,
// category, size, price, gender
func describeFilters(e nlu.Entities) []string {
	var parts []string
	if len(e.Colors) > 0 {
		parts = append(parts, "màu "+strings.Join(e.Colors, ", "))
	}
	if len(e.Brands) > 0 {
		parts = append(parts, "thương hiệu "+strings.Join(e.Brands, ", "))
	}
	if len(e.Categories) > 0 {
		parts = append(parts, "loại "+strings.Join(e.Categories, ", "))
	}
	if len(e.Sizes) > 0 {
		parts = append(parts, "size "+strings.Join(e.Sizes, ", "))
	}
	if e.PriceRange != nil {
		parts = append(parts, fmt.Sprintf("giá %dk-%dk", e.PriceRange.Min/1000, e.PriceRange.Max/1000))
	}
	if e.Gender != "" {
		parts = append(parts, "dành cho "+e.Gender)
	}
	return parts
}

func noResultsMessage(e nlu.Entities) string {
	var suggestions []string
	if len(e.Colors) > 0 {
		suggestions = append(suggestions, "Thử tìm màu khác thay vì "+strings.Join(e.Colors, ", "))
	}
	if e.PriceRange != nil {
		suggestions = append(suggestions, "Thử mở rộng khoảng giá")
	}
	if len(e.Brands) > 0 {
		suggestions = append(suggestions, "Thử tìm thương hiệu khác")
	}
	if len(suggestions) == 0 {
		suggestions = []string{
			"Mô tả chi tiết hơn về sản phẩm",
			"Tìm theo danh mục (áo, quần, giày...)",
			"Xem sản phẩm hot hiện tại",
		}
	}

	var b strings.Builder
	b.WriteString("Xin lỗi, tôi không tìm thấy sản phẩm nào phù hợp. Bạn có thể thử:\n\n")
	for _, sug := range suggestions {
		b.WriteString("• " + sug + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *ChatService) handleSizeHelp(in ChatInput, reply *model.ChatReply, entities nlu.Entities) {
	if len(entities.Sizes) > 0 {
		reply.Message = fmt.Sprintf("Bạn đang quan tâm đến size %s. Tôi có thể giúp bạn kiểm tra size này có phù hợp không?", entities.Sizes[0])
	} else {
		reply.Message = "Tôi có thể giúp bạn chọn size phù hợp! Bạn đang quan tâm đến loại sản phẩm nào?"
	}

	for _, category := range entities.Categories {
		guide, ok := s.lex.SizeGuideFor(category)
		if !ok {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "\n\n📏 Bảng size %s:", guide.Category)
		for _, e := range guide.Entries {
			fmt.Fprintf(&b, "\n• %s: %s", e.Size, e.Note)
		}
		reply.Message += b.String()
		break
	}

	reply.QuickReplies = append(reply.QuickReplies, sizeHelpReplies...)
	reply.ActionsTaken = append(reply.ActionsTaken, model.Action{
		Type:          model.ActionSizeHelp,
		Query:         in.Message,
		DetectedSizes: append([]string{}, entities.Sizes...),
	})
}

func (s *ChatService) handleOrderHelp(in ChatInput, reply *model.ChatReply) {
	reply.Message = "Tôi có thể hỗ trợ bạn đặt hàng! Bạn cần hỗ trợ gì?"
	reply.QuickReplies = append(reply.QuickReplies, orderHelpReplies...)
	reply.ActionsTaken = append(reply.ActionsTaken, model.Action{
		Type:  model.ActionOrderHelp,
		Query: in.Message,
	})
}

func (s *ChatService) handlePriceInquiry(ctx context.Context, in ChatInput, reply *model.ChatReply, entities nlu.Entities) {
	action := model.Action{
		Type:  model.ActionPriceInquiry,
		Query: in.Message,
	}

	if pr := entities.PriceRange; pr != nil {
		r := *pr
		action.PriceRange = &r
		products, err := s.catalog.FindByPriceRange(ctx, pr.Min, pr.Max, s.resultLimit)
		if err != nil {
			s.unavailable(reply, metrics.ReasonCatalog, err)
			reply.ActionsTaken = append(reply.ActionsTaken, action)
			return
		}
		action.ResultsCount = len(products)
		if len(products) > 0 {
			reply.SuggestedProducts = products
			reply.Message = fmt.Sprintf("Đây là các sản phẩm trong khoảng giá %s - %s VND:", formatVND(pr.Min), formatVND(pr.Max))
		} else {
			reply.Message = fmt.Sprintf("Hiện tại không có sản phẩm nào trong khoảng giá %s - %s VND.", formatVND(pr.Min), formatVND(pr.Max))
		}
	} else {
		reply.Message = "Bạn muốn xem sản phẩm trong khoảng giá nào? Tôi có thể gợi ý cho bạn:"
	}

	reply.QuickReplies = append(reply.QuickReplies, priceRangeReplies...)
	reply.ActionsTaken = append(reply.ActionsTaken, action)
}

func (s *ChatService) handleGreeting(in ChatInput, reply *model.ChatReply) {
	name := defaultAddressTerm
	if in.User != nil && strings.TrimSpace(in.User.FirstName) != "" {
		name = strings.TrimSpace(in.User.FirstName)
	}
	reply.Message = fmt.Sprintf("Xin chào %s! Tôi là trợ lý AI của shop. Tôi có thể giúp bạn tìm sản phẩm, chọn size, và hỗ trợ đặt hàng. Bạn cần hỗ trợ gì?", name)
	reply.QuickReplies = append(reply.QuickReplies, greetingReplies...)
	reply.ActionsTaken = append(reply.ActionsTaken, model.Action{
		Type:  model.ActionGreeting,
		Query: in.Message,
	})
}

func (s *ChatService) handleGeneral(ctx context.Context, in ChatInput, reply *model.ChatReply) {
	action := model.Action{
		Type:  model.ActionGeneral,
		Query: in.Message,
	}

	entry, err := s.knowledge.FindAnswer(ctx, in.Message)
	if err != nil {
		s.unavailable(reply, metrics.ReasonKnowledge, err)
		reply.ActionsTaken = append(reply.ActionsTaken, action)
		return
	}

	if entry != nil {
		reply.Message = entry.Answer
		action.KnowledgeMatched = true
	} else {
		reply.Message = generalFallback
	}
	reply.QuickReplies = append(reply.QuickReplies, generalReplies...)
	reply.ActionsTaken = append(reply.ActionsTaken, action)
}

// unavailable turns a failed lookup into an apology
func (s *ChatService) unavailable(reply *model.ChatReply, reason string, err error) {
	s.logger.Error("lookup failed", zap.String("reason", reason), zap.Error(err))
	metrics.ChatFallbacks.WithLabelValues(reason).Inc()
	reply.Message = unavailableMessage
	reply.SuggestedProducts = []model.Product{}
	reply.QuickReplies = append([]string{}, unavailableReplies...)
}

func failureReply(intent nlu.Intent) *model.ChatReply {
	reply := newReply(intent, nlu.NewEntities(), false)
	reply.Message = failureMessage
	reply.QuickReplies = append(reply.QuickReplies, failureQuickReplies...)
	return reply
}
