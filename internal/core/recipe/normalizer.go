package recipe

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"recipe-analyzer/internal/pkg/common"

	"go.uber.org/zap"
)

// 修復時使用的預設值
const (
	DefaultName        = "Unnamed Recipe"
	DefaultIngredient  = "No ingredients specified"
	DefaultInstruction = "No instructions provided"
	DefaultCookingTime = "30 minutes"
	DefaultDifficulty  = common.DifficultyMedium
)

// DefaultNutrition 預設營養資訊
var DefaultNutrition = common.NutritionInfo{Calories: 300, Protein: "12g", Carbs: "35g"}

// RepairStatus 單筆食譜的修復結果
type RepairStatus int

const (
	// StatusValid 原始資料即符合格式
	StatusValid RepairStatus = iota
	// StatusRepaired 已補齊或轉換欄位
	StatusRepaired
	// StatusDropped 無法修復，捨棄
	StatusDropped
)

func (s RepairStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusRepaired:
		return "repaired"
	case StatusDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// RepairResult 修復結果，Repairs 列出套用過的修正
type RepairResult struct {
	Status  RepairStatus
	Recipe  common.Recipe
	Repairs []string
	Reason  string
}

// Normalize 將模型輸出轉為合法食譜列表，永遠至少回傳一筆
// ingredients 為使用者原始輸入，用於最後一層預設食譜
func Normalize(rawText, ingredients string) []common.Recipe {
	items, ok := ParseRecipeItems(rawText)
	if !ok {
		if proseMentionsIngredients(rawText, ingredients) {
			common.LogDebug("模型輸出非 JSON，使用文字備援食譜")
			return []common.Recipe{FallbackRecipe(rawText)}
		}
		common.LogDebug("模型輸出無法解析，使用預設食譜")
		return DefaultRecipes(ingredients)
	}

	recipes := RepairItems(items)
	if len(recipes) == 0 {
		common.LogWarn("沒有可用的食譜，使用預設食譜", zap.Int("items", len(items)))
		return DefaultRecipes(ingredients)
	}
	return recipes
}

// RepairItems 逐筆修復並略過無法修復的項目
func RepairItems(items []interface{}) []common.Recipe {
	recipes := make([]common.Recipe, 0, len(items))
	for i, item := range items {
		result := RepairRecipe(item)
		switch result.Status {
		case StatusDropped:
			common.LogWarn("捨棄無法修復的食譜",
				zap.Int("index", i),
				zap.String("reason", result.Reason),
			)
			continue
		case StatusRepaired:
			common.LogDebug("食譜欄位已修復",
				zap.Int("index", i),
				zap.Strings("repairs", result.Repairs),
			)
		}
		recipes = append(recipes, result.Recipe)
	}
	return recipes
}

// ParseRecipeItems 從文字中取出食譜物件列表
// 依序嘗試：第一個 '[' 到最後一個 ']'、整段文字、第一個 '{' 到最後一個 '}'
func ParseRecipeItems(rawText string) ([]interface{}, bool) {
	if candidate, ok := common.ExtractJSONArray(rawText); ok {
		if items, ok := decodeItems(candidate); ok {
			return items, true
		}
	}
	if items, ok := decodeItems(strings.TrimSpace(rawText)); ok {
		return items, true
	}
	if candidate, ok := common.ExtractJSONObject(rawText); ok {
		if items, ok := decodeItems(candidate); ok {
			return items, true
		}
	}
	return nil, false
}

func decodeItems(text string) ([]interface{}, bool) {
	if text == "" {
		return nil, false
	}
	var value interface{}
	if err := common.ParseJSON(text, &value); err != nil {
		return nil, false
	}

	switch v := value.(type) {
	case []interface{}:
		return v, true
	case map[string]interface{}:
		// {"recipes": [...]} 或單一食譜物件
		if list, ok := v["recipes"].([]interface{}); ok {
			return list, true
		}
		return []interface{}{v}, true
	default:
		return nil, false
	}
}

// RepairRecipe 檢查並補齊單筆食譜
func RepairRecipe(item interface{}) RepairResult {
	obj, ok := item.(map[string]interface{})
	if !ok {
		return dropped(fmt.Sprintf("recipe is %s, not an object", typeName(item)))
	}

	r := &repairer{}
	var out common.Recipe
	var err error

	if out.Name, err = r.text(obj, "name", DefaultName); err != nil {
		return dropped(err.Error())
	}
	if out.Ingredients, err = r.list(obj, "ingredients", DefaultIngredient); err != nil {
		return dropped(err.Error())
	}
	if out.Instructions, err = r.list(obj, "instructions", DefaultInstruction); err != nil {
		return dropped(err.Error())
	}
	if out.CookingTime, err = r.text(obj, "cookingTime", DefaultCookingTime); err != nil {
		return dropped(err.Error())
	}
	if out.Difficulty, err = r.text(obj, "difficulty", DefaultDifficulty); err != nil {
		return dropped(err.Error())
	}
	if out.Nutrition, err = r.nutrition(obj["nutrition"]); err != nil {
		return dropped(err.Error())
	}

	status := StatusValid
	if len(r.repairs) > 0 {
		status = StatusRepaired
	}
	return RepairResult{Status: status, Recipe: out, Repairs: r.repairs}
}

func dropped(reason string) RepairResult {
	return RepairResult{Status: StatusDropped, Reason: reason}
}

// repairer 累積修復紀錄
type repairer struct {
	repairs []string
}

func (r *repairer) note(format string, args ...interface{}) {
	r.repairs = append(r.repairs, fmt.Sprintf(format, args...))
}

// text 取得字串欄位，缺漏或空白時使用預設值
func (r *repairer) text(obj map[string]interface{}, key, fallback string) (string, error) {
	raw, exists := obj[key]
	if !exists || raw == nil {
		r.note("%s: missing", key)
		return fallback, nil
	}

	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			r.note("%s: empty", key)
			return fallback, nil
		}
		return v, nil
	case json.Number:
		r.note("%s: number converted to string", key)
		return v.String(), nil
	case bool:
		r.note("%s: bool converted to string", key)
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("%s: unsupported type %s", key, typeName(raw))
	}
}

// list 取得字串列表欄位，非列表值轉為單一元素列表
func (r *repairer) list(obj map[string]interface{}, key, placeholder string) ([]string, error) {
	raw, exists := obj[key]
	if !exists || raw == nil {
		r.note("%s: missing", key)
		return []string{placeholder}, nil
	}

	values, isList := raw.([]interface{})
	if !isList {
		r.note("%s: %s coerced to list", key, typeName(raw))
		s := stringify(raw)
		if strings.TrimSpace(s) == "" {
			return []string{placeholder}, nil
		}
		return []string{s}, nil
	}

	out := make([]string, 0, len(values))
	for i, value := range values {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				r.note("%s[%d]: blank entry removed", key, i)
				continue
			}
			out = append(out, v)
		case nil:
			r.note("%s[%d]: null entry removed", key, i)
		case json.Number, bool:
			r.note("%s[%d]: %s converted to string", key, i, typeName(value))
			out = append(out, stringify(v))
		default:
			return nil, fmt.Errorf("%s[%d]: unsupported type %s", key, i, typeName(value))
		}
	}

	if len(out) == 0 {
		r.note("%s: empty list", key)
		return []string{placeholder}, nil
	}
	return out, nil
}

// nutrition 檢查營養資訊，非物件時整組使用預設值
func (r *repairer) nutrition(raw interface{}) (common.NutritionInfo, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		if raw == nil {
			r.note("nutrition: missing")
		} else {
			r.note("nutrition: %s replaced with defaults", typeName(raw))
		}
		return DefaultNutrition, nil
	}

	out := DefaultNutrition
	calories, err := r.calories(obj)
	if err != nil {
		return out, err
	}
	out.Calories = calories

	if out.Protein, err = r.text(obj, "protein", DefaultNutrition.Protein); err != nil {
		return out, fmt.Errorf("nutrition.%w", err)
	}
	if out.Carbs, err = r.text(obj, "carbs", DefaultNutrition.Carbs); err != nil {
		return out, fmt.Errorf("nutrition.%w", err)
	}
	return out, nil
}

// calories 必須為非負整數，接受數字字串與小數（四捨五入）
func (r *repairer) calories(obj map[string]interface{}) (int, error) {
	raw, exists := obj["calories"]
	if !exists || raw == nil {
		r.note("nutrition.calories: missing")
		return DefaultNutrition.Calories, nil
	}

	var text string
	switch v := raw.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
		r.note("nutrition.calories: string converted to number")
	default:
		return 0, fmt.Errorf("nutrition.calories: unsupported type %s", typeName(raw))
	}

	if n, err := strconv.Atoi(text); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("nutrition.calories: negative value %d", n)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("nutrition.calories: %q is not a number", text)
	}
	if f < 0 {
		return 0, fmt.Errorf("nutrition.calories: negative value %v", f)
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("nutrition.calories: value %v out of range", f)
	}
	r.note("nutrition.calories: rounded")
	return int(math.Round(f)), nil
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "bool"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
