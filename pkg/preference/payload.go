package preference

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
)

// defaultOffDelta "off" 列表中休息请求的默认增量
const defaultOffDelta = 5.0

// FlexString 兼容 JSON 字符串与数字
type FlexString string

// UnmarshalJSON 实现 json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("无法解析为字符串或数字: %s", string(data))
	}
	*f = FlexString(num.String())
	return nil
}

// PayloadItem preference 数组元素：配对请求或 OFF 请求
type PayloadItem struct {
	ID     FlexString `json:"id,omitempty"`
	Shift  string     `json:"shift,omitempty"`
	Date   FlexString `json:"date,omitempty"`
	Weight *float64   `json:"weight,omitempty"`
}

// Payload 单个护士的原始偏好数据
type Payload struct {
	Shift      map[string]map[string]float64 `json:"shift,omitempty"`
	Off        []FlexString                  `json:"off,omitempty"`
	Preference []PayloadItem                 `json:"preference,omitempty"`
}

// ParsePayloads 将原始偏好数据转换为结构化请求
// 班次权重直接作为增量叠加在基础权重上；正配对权重为同班，负为错开
func ParsePayloads(cfg *model.RosterConfig, payloads map[string]Payload) *Requests {
	log := logger.Get().With().Str("component", "preference").Logger()
	req := &Requests{
		Off:   make(map[string]map[int]float64),
		Shift: make(map[string]map[model.ShiftCode]map[int]float64),
	}
	setOff := func(id string, day int, delta float64) {
		if req.Off[id] == nil {
			req.Off[id] = make(map[int]float64)
		}
		req.Off[id][day] = delta
	}

	ids := make([]string, 0, len(payloads))
	for id := range payloads {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := payloads[id]
		for rawCode, days := range p.Shift {
			code := model.NormalizeShiftCode(rawCode)
			if _, ok := cfg.Index(code); !ok {
				log.Warn().Str("nurse_id", id).Str("shift", rawCode).Msg("偏好数据中的班次代码无效，已跳过")
				continue
			}
			for dayStr, weight := range days {
				day, err := strconv.Atoi(strings.TrimSpace(dayStr))
				if err != nil {
					log.Warn().Str("nurse_id", id).Str("day", dayStr).Msg("偏好数据中的日期无效，已跳过")
					continue
				}
				if code == model.ShiftOff {
					setOff(id, day, weight)
					continue
				}
				if req.Shift[id] == nil {
					req.Shift[id] = make(map[model.ShiftCode]map[int]float64)
				}
				if req.Shift[id][code] == nil {
					req.Shift[id][code] = make(map[int]float64)
				}
				req.Shift[id][code][day] = weight
			}
		}

		for _, raw := range p.Off {
			day, err := strconv.Atoi(strings.TrimSpace(string(raw)))
			if err != nil {
				log.Warn().Str("nurse_id", id).Str("day", string(raw)).Msg("休息日期无效，已跳过")
				continue
			}
			setOff(id, day, defaultOffDelta)
		}

		for _, item := range p.Preference {
			weight := defaultOffDelta
			if item.Weight != nil {
				weight = *item.Weight
			}
			switch {
			case model.NormalizeShiftCode(item.Shift) == model.ShiftOff:
				day, err := strconv.Atoi(strings.TrimSpace(string(item.Date)))
				if err != nil {
					log.Warn().Str("nurse_id", id).Str("date", string(item.Date)).Msg("OFF 请求日期无效，已跳过")
					continue
				}
				setOff(id, day, weight)
			case item.ID != "" && item.Weight != nil:
				if weight == 0 {
					continue
				}
				kind := PairTogether
				if weight < 0 {
					kind = PairApart
					weight = -weight
				}
				req.Pairs = append(req.Pairs, PairInput{
					NurseID:  id,
					TargetID: string(item.ID),
					Weight:   weight,
					Kind:     kind,
					Source:   SourceRequest,
				})
			default:
				log.Warn().Str("nurse_id", id).Msg("无法识别的偏好条目，已跳过")
			}
		}
	}
	return req
}
