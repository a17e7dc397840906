package geo

import (
	"math"

	"unit-tracker/internal/models"
)

// EarthRadiusKm 地球平均半径（公里）
const EarthRadiusKm = 6371.0

// Distance 两点间大圆距离（公里，haversine 公式）
// NaN 输入会传播为 NaN
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Between 两个位置样本的距离
func Between(a, b models.Position) float64 {
	return Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// PathLength 轨迹总长度（相邻点距离之和）
func PathLength(positions []models.Position) float64 {
	total := 0.0
	for i := 1; i < len(positions); i++ {
		total += Between(positions[i-1], positions[i])
	}
	return total
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
